package rollout

import (
	"github.com/cespare/xxhash/v2"
	"github.com/go-smart-notifications/internal/domain"
)

// Settings is the typed, immutable view of the storage flags that backend
// selection and the router consume.
type Settings struct {
	DefaultBackend    domain.Backend
	DualWrite         bool
	AutoMigration     bool
	RolloutEnabled    bool
	RolloutPercentage int
	Allowlist         map[string]struct{}
	Blocklist         map[string]struct{}
	Monitoring        Monitoring
}

// Monitoring configures timing instrumentation of backend calls.
type Monitoring struct {
	Enabled         bool
	SlowThresholdMS int
	LogSlow         bool
	CompareBackends bool
}

// Bucket maps a user id to [0, 100) using xxhash64 over its UTF-8 bytes.
// xxhash is seed-free and platform independent, so a user keeps its bucket
// across processes and restarts.
func Bucket(userID string) int {
	return int(xxhash.Sum64String(userID) % 100)
}

// SelectBackend decides which backend owns userID's notifications.
// The allowlist wins over the blocklist, both win over the rollout switch.
func SelectBackend(userID string, s Settings) domain.Backend {
	if _, ok := s.Allowlist[userID]; ok {
		return domain.BackendB
	}
	if _, ok := s.Blocklist[userID]; ok {
		return domain.BackendA
	}
	if !s.RolloutEnabled {
		if s.DefaultBackend == "" {
			return domain.BackendA
		}
		return s.DefaultBackend
	}
	if Bucket(userID) < s.RolloutPercentage {
		return domain.BackendB
	}
	return domain.BackendA
}
