package domain

import "time"

// Backend identifies one of the two interchangeable notification stores.
type Backend string

const (
	// BackendA is the relational store users start on.
	BackendA Backend = "postgresql"
	// BackendB is the store users are gradually rolled out to.
	BackendB Backend = "dynamodb"
)

// ParseBackend accepts the canonical names plus the "a"/"b" shorthands.
func ParseBackend(s string) (Backend, bool) {
	switch s {
	case string(BackendA), "a", "A", "postgres":
		return BackendA, true
	case string(BackendB), "b", "B", "dynamo":
		return BackendB, true
	}
	return "", false
}

// Other returns the backend that is not b.
func (b Backend) Other() Backend {
	if b == BackendB {
		return BackendA
	}
	return BackendB
}

type FeatureFlag struct {
	Name      string         `json:"name"`
	Enabled   bool           `json:"enabled"`
	Config    map[string]any `json:"config,omitempty"`
	CreatedAt time.Time      `json:"created"`
	UpdatedAt time.Time      `json:"updated"`
}

// Clone returns a copy whose Config map can be mutated independently.
func (f FeatureFlag) Clone() FeatureFlag {
	out := f
	if f.Config != nil {
		out.Config = make(map[string]any, len(f.Config))
		for k, v := range f.Config {
			out.Config[k] = v
		}
	}
	return out
}
