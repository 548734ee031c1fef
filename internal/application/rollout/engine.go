package rollout

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-smart-notifications/internal/domain"
)

// Snapshot is one immutable generation of the flag set and its derived settings.
type Snapshot struct {
	flags    map[string]domain.FeatureFlag
	settings Settings
}

// Settings returns the typed view of the snapshot.
func (s *Snapshot) Settings() Settings { return s.settings }

// Engine answers backend-selection questions from the current snapshot.
// Reads are lock-free; UpdateFlag swaps in a new snapshot under a
// single-writer mutex.
type Engine struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	clock   func() time.Time
}

// NewEngine validates the initial flag set. A nil clock means time.Now.
func NewEngine(flags map[string]domain.FeatureFlag, clock func() time.Time) (*Engine, error) {
	if clock == nil {
		clock = time.Now
	}
	own := make(map[string]domain.FeatureFlag, len(flags))
	for name, f := range flags {
		own[name] = f.Clone()
	}
	settings, err := deriveSettings(own)
	if err != nil {
		return nil, err
	}
	e := &Engine{clock: clock}
	e.current.Store(&Snapshot{flags: own, settings: settings})
	return e, nil
}

// Snapshot returns the generation currently in force.
func (e *Engine) Snapshot() *Snapshot { return e.current.Load() }

func (e *Engine) SelectBackend(userID string) domain.Backend {
	return SelectBackend(userID, e.Snapshot().settings)
}

func (e *Engine) DualWriteEnabled() bool { return e.Snapshot().settings.DualWrite }

func (e *Engine) AutoMigrationEnabled() bool { return e.Snapshot().settings.AutoMigration }

func (e *Engine) Monitoring() Monitoring { return e.Snapshot().settings.Monitoring }

// Flags lists copies of all flags ordered by name.
func (e *Engine) Flags() []domain.FeatureFlag {
	snap := e.Snapshot()
	out := make([]domain.FeatureFlag, 0, len(snap.flags))
	for _, f := range snap.flags {
		out = append(out, f.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Flag returns a copy of the named flag.
func (e *Engine) Flag(name string) (domain.FeatureFlag, bool) {
	f, ok := e.Snapshot().flags[name]
	if !ok {
		return domain.FeatureFlag{}, false
	}
	return f.Clone(), true
}

// UpdateFlag replaces the enabled state of name, merges cfg into its
// configuration and stamps UpdatedAt. Keys the flag does not read fail with
// domain.ErrBadRequest. If the merged result is invalid the current snapshot
// is kept.
func (e *Engine) UpdateFlag(name string, enabled bool, cfg map[string]any) (domain.FeatureFlag, error) {
	if err := checkConfigKeys(name, cfg); err != nil {
		return domain.FeatureFlag{}, err
	}
	return e.apply(name, func(f *domain.FeatureFlag) {
		f.Enabled = enabled
		for k, v := range cfg {
			if f.Config == nil {
				f.Config = make(map[string]any, len(cfg))
			}
			f.Config[k] = v
		}
		f.UpdatedAt = e.clock().UTC()
	})
}

// Restore lays a previously persisted copy over the current flag. The saved
// enabled state and config keys win; keys the saved copy lacks keep their
// current value. CreatedAt is not restored.
func (e *Engine) Restore(saved domain.FeatureFlag) (domain.FeatureFlag, error) {
	return e.apply(saved.Name, func(f *domain.FeatureFlag) {
		f.Enabled = saved.Enabled
		for k, v := range saved.Clone().Config {
			if f.Config == nil {
				f.Config = make(map[string]any, len(saved.Config))
			}
			f.Config[k] = v
		}
		if !saved.UpdatedAt.IsZero() {
			f.UpdatedAt = saved.UpdatedAt
		}
	})
}

func (e *Engine) apply(name string, mutate func(*domain.FeatureFlag)) (domain.FeatureFlag, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.current.Load()
	f, ok := prev.flags[name]
	if !ok {
		return domain.FeatureFlag{}, fmt.Errorf("unknown feature flag %q: %w", name, domain.ErrConfiguration)
	}

	next := make(map[string]domain.FeatureFlag, len(prev.flags))
	for k, v := range prev.flags {
		next[k] = v
	}
	updated := f.Clone()
	mutate(&updated)
	next[name] = updated

	settings, err := deriveSettings(next)
	if err != nil {
		return domain.FeatureFlag{}, err
	}
	e.current.Store(&Snapshot{flags: next, settings: settings})
	return updated.Clone(), nil
}
