package broadcast

import (
	"fmt"
	"strings"
)

// Quality is a viewer-selected video tier. The relay never transcodes: a tier
// maps onto one of the publisher's simulcast layers when the publisher offers
// them, and degrades to the single published video track otherwise.
type Quality string

const (
	Quality1080 Quality = "1080"
	Quality720  Quality = "720"
	Quality480  Quality = "480"
)

// Simulcast rid conventions as sent by browsers: f(ull), h(alf), q(uarter).
const (
	ridFull    = "f"
	ridHalf    = "h"
	ridQuarter = "q"
)

// ParseQuality accepts "1080", "720", "480", with an optional trailing "p".
func ParseQuality(raw string) (Quality, error) {
	normalized := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "p")
	switch normalized {
	case string(Quality1080):
		return Quality1080, nil
	case string(Quality720):
		return Quality720, nil
	case string(Quality480):
		return Quality480, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownQuality, raw)
	}
}

// ridPreference orders simulcast layers from best to worst fit for the tier.
// The first rid present in the publication wins.
func (q Quality) ridPreference() []string {
	switch q {
	case Quality1080:
		return []string{ridFull, ridHalf, ridQuarter}
	case Quality720:
		return []string{ridHalf, ridFull, ridQuarter}
	case Quality480:
		return []string{ridQuarter, ridHalf, ridFull}
	default:
		return []string{ridFull, ridHalf, ridQuarter}
	}
}
