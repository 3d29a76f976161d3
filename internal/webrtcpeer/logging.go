package webrtcpeer

import (
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// loggerFactory routes pion's internal logging (ICE, DTLS, SCTP) into the
// process-wide slog logger.
type loggerFactory struct {
	log *slog.Logger
}

func newLoggerFactory(log *slog.Logger) logging.LoggerFactory {
	return loggerFactory{log: log.With("component", "pion")}
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return leveledLogger{log: f.log.With("scope", scope)}
}

// leveledLogger demotes pion's trace and info output to debug: pion logs at
// info granularity per connection, which would drown our own logs at scale.
type leveledLogger struct {
	log *slog.Logger
}

func (l leveledLogger) Trace(msg string)                  { l.log.Debug(msg) }
func (l leveledLogger) Tracef(format string, args ...any) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l leveledLogger) Debug(msg string)                  { l.log.Debug(msg) }
func (l leveledLogger) Debugf(format string, args ...any) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l leveledLogger) Info(msg string)                   { l.log.Debug(msg) }
func (l leveledLogger) Infof(format string, args ...any)  { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l leveledLogger) Warn(msg string)                   { l.log.Warn(msg) }
func (l leveledLogger) Warnf(format string, args ...any)  { l.log.Warn(fmt.Sprintf(format, args...)) }
func (l leveledLogger) Error(msg string)                  { l.log.Error(msg) }
func (l leveledLogger) Errorf(format string, args ...any) { l.log.Error(fmt.Sprintf(format, args...)) }
