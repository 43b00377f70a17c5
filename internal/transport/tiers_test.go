package transport

import (
	"testing"
	"time"
)

func TestTierDurations(t *testing.T) {
	tests := []struct {
		tier     Tier
		duration time.Duration
		deadline time.Duration
	}{
		{TierQuick, 30 * time.Second, 30 * time.Second},
		{TierNormal, 120 * time.Second, 150 * time.Second},
		{TierLong, 300 * time.Second, 330 * time.Second},
		{TierMax, 600 * time.Second, 660 * time.Second},
	}

	for _, tt := range tests {
		if got := tt.tier.Duration(); got != tt.duration {
			t.Errorf("Tier %s: expected duration %v, got %v", tt.tier, tt.duration, got)
		}
		if got := tt.tier.Deadline(); got != tt.deadline {
			t.Errorf("Tier %s: expected deadline %v, got %v", tt.tier, tt.deadline, got)
		}
		if !tt.tier.Valid() {
			t.Errorf("Tier %s: expected Valid() to be true", tt.tier)
		}
	}
}

func TestTierSeconds(t *testing.T) {
	if got := TierLong.Seconds(); got != 300 {
		t.Errorf("Expected 300 seconds for long tier, got %d", got)
	}
}

func TestUnknownTierInvalid(t *testing.T) {
	if Tier("forever").Valid() {
		t.Error("Expected unknown tier to be invalid")
	}
}
