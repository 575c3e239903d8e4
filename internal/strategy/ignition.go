// Package strategy contains the entry-trigger logic evaluated over tick windows.
package strategy

import (
	"github.com/razieloren/hype-train/internal/market"
)

// Ignition fires when an asset shows a sustained upward run: the last N price
// steps are non-decreasing and the newest price sits strictly above the price
// at the start of the run.
type Ignition struct {
	length int
}

// NewIgnition builds an ignition trigger over runs of the given length.
func NewIgnition(length int) *Ignition {
	if length < 1 {
		length = 1
	}
	return &Ignition{length: length}
}

// Name returns the identifier for logging.
func (g *Ignition) Name() string { return "Ignition" }

// Triggered reports whether the momentum condition holds for the window.
// Windows shorter than length+1 ticks never trigger.
func (g *Ignition) Triggered(window []market.Tick) bool {
	last := len(window) - 1
	if last < g.length {
		return false
	}
	for i := 0; i < g.length; i++ {
		if window[last-i].QuoteToAsset < window[last-1-i].QuoteToAsset {
			return false
		}
	}
	// Equal consecutive prices keep the streak alive, but the run as a whole
	// must still end strictly higher than it started.
	return window[last].QuoteToAsset/window[len(window)-g.length].QuoteToAsset > 1
}
