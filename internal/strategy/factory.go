package strategy

import (
	"strings"

	"github.com/razieloren/hype-train/internal/market"
)

// Trigger defines behaviour shared by entry-trigger implementations.
type Trigger interface {
	Triggered(window []market.Tick) bool
	Name() string
}

// Build returns a trigger implementation matching the configured mode.
func Build(mode string, length int) Trigger {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "ignition", "momentum":
		return NewIgnition(length)
	default:
		return NewIgnition(length)
	}
}
