package strategy

import (
	"testing"

	"github.com/razieloren/hype-train/internal/market"
)

func window(prices ...float64) []market.Tick {
	ticks := make([]market.Tick, len(prices))
	for i, px := range prices {
		ticks[i] = market.Tick{Asset: "ETH", Quote: "BTC", QuoteToAsset: px, AssetToQuote: 1 / px}
	}
	return ticks
}

func TestTriggeredInsufficientData(t *testing.T) {
	trigger := NewIgnition(3)
	if trigger.Triggered(window(1, 2, 3)) {
		t.Fatalf("expected no trigger with fewer than length+1 ticks")
	}
	if trigger.Triggered(nil) {
		t.Fatalf("expected no trigger on empty window")
	}
}

func TestTriggeredStrictlyIncreasing(t *testing.T) {
	trigger := NewIgnition(3)
	if !trigger.Triggered(window(1, 1.1, 1.2, 1.3)) {
		t.Fatalf("expected trigger on strictly increasing run")
	}
}

func TestTriggeredDipBreaksRun(t *testing.T) {
	trigger := NewIgnition(3)
	if trigger.Triggered(window(1, 1.2, 1.1, 1.3)) {
		t.Fatalf("expected no trigger when a step decreases")
	}
}

func TestTriggeredFlatRunDoesNotFire(t *testing.T) {
	trigger := NewIgnition(3)
	// Ties keep the streak alive but the overall ratio is exactly 1.
	if trigger.Triggered(window(1, 1, 1, 1)) {
		t.Fatalf("expected no trigger on a flat run")
	}
}

func TestTriggeredTiesAllowedWithinRisingRun(t *testing.T) {
	trigger := NewIgnition(3)
	if !trigger.Triggered(window(1, 1.1, 1.1, 1.2)) {
		t.Fatalf("expected trigger when ties occur inside a rising run")
	}
}

func TestTriggeredOnlyRecentRunMatters(t *testing.T) {
	trigger := NewIgnition(2)
	// Older dip is outside the evaluated run.
	if !trigger.Triggered(window(5, 1, 1.1, 1.2)) {
		t.Fatalf("expected trigger, older ticks should not gate the run")
	}
}

func TestBuildDefaultsToIgnition(t *testing.T) {
	trigger := Build("", 4)
	if trigger.Name() != "Ignition" {
		t.Fatalf("expected ignition trigger, got %s", trigger.Name())
	}
	trigger = Build("unknown-mode", 4)
	if trigger.Name() != "Ignition" {
		t.Fatalf("expected ignition fallback, got %s", trigger.Name())
	}
}
