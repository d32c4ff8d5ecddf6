package service

import "github.com/neobile/smarttutor-iap/internal/domain/entity"

// Feature is a premium-gated capability.
type Feature string

const (
	FeatureUnlimitedAttempts Feature = "unlimited_attempts"
	FeatureExplanations      Feature = "explanations"
)

// StatusSource provides the most recently reconciled subscription status.
type StatusSource interface {
	CachedStatus() entity.Subscription
}

// Gate is the entitlement check consulted by premium features. It reads
// only the cached status, never a live network call, accepting that
// entitlement can be briefly stale. On denial the upgrade prompt fires, and
// callers re-check after the purchase flow instead of assuming success.
type Gate struct {
	source StatusSource
	prompt func(Feature)
}

// NewGate creates an entitlement gate. prompt may be nil when no upgrade
// surface is attached (headless checks).
func NewGate(source StatusSource, prompt func(Feature)) *Gate {
	return &Gate{source: source, prompt: prompt}
}

// Allow reports whether the feature may proceed. Denials trigger the
// upgrade prompt.
func (g *Gate) Allow(feature Feature) bool {
	if g.source.CachedStatus().IsPremium() {
		return true
	}
	if g.prompt != nil {
		g.prompt(feature)
	}
	return false
}
