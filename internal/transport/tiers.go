package transport

import "time"

// Tier is a named timeout budget. Every outbound call names exactly one tier;
// tiers are never combined or interpolated. The durations encode the
// backend's known behavioral classes: liveness probes answer in seconds,
// short code execution in a couple of minutes, training runs take longer,
// and nothing is allowed past the absolute ceiling.
type Tier string

const (
	TierQuick  Tier = "quick"  // Health checks, variable listing
	TierNormal Tier = "normal" // Code execution, file ops
	TierLong   Tier = "long"   // Training, large downloads
	TierMax    Tier = "max"    // Absolute maximum
)

var tierDurations = map[Tier]time.Duration{
	TierQuick:  30 * time.Second,
	TierNormal: 120 * time.Second,
	TierLong:   300 * time.Second,
	TierMax:    600 * time.Second,
}

// Network buffer added on top of the tier duration when setting the actual
// request deadline, so the client does not abort fractionally before the
// backend would have finished. Only the dispatcher may add this buffer.
var tierBuffers = map[Tier]time.Duration{
	TierQuick:  0,
	TierNormal: 30 * time.Second,
	TierLong:   30 * time.Second,
	TierMax:    60 * time.Second,
}

// Duration returns the tier's budget, the value sent to the backend as its
// execution timeout.
func (t Tier) Duration() time.Duration {
	return tierDurations[t]
}

// Deadline returns the client-side request deadline: the tier duration plus
// the fixed network buffer.
func (t Tier) Deadline() time.Duration {
	return tierDurations[t] + tierBuffers[t]
}

// Seconds returns the tier's budget in whole seconds.
func (t Tier) Seconds() int {
	return int(tierDurations[t] / time.Second)
}

// Valid reports whether t is one of the four known tiers.
func (t Tier) Valid() bool {
	_, ok := tierDurations[t]
	return ok
}
