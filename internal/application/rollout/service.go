package rollout

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-smart-notifications/internal/domain"
)

// FlagStore persists flag overrides so runtime updates survive restarts.
type FlagStore interface {
	LoadAll(ctx context.Context) ([]domain.FeatureFlag, error)
	Save(ctx context.Context, f domain.FeatureFlag) error
}

type Service interface {
	ListFlags(ctx context.Context) []domain.FeatureFlag
	UpdateFlag(ctx context.Context, name string, enabled bool, cfg map[string]any) (*domain.FeatureFlag, error)
	Restore(ctx context.Context) error
}

type service struct {
	engine *Engine
	store  FlagStore
	logger *slog.Logger
}

// NewService wraps engine with optional persistence. store may be nil.
func NewService(engine *Engine, store FlagStore, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{engine: engine, store: store, logger: logger}
}

func (s *service) ListFlags(_ context.Context) []domain.FeatureFlag {
	return s.engine.Flags()
}

// UpdateFlag applies the change in memory first; a persistence failure is
// logged and does not undo it.
func (s *service) UpdateFlag(ctx context.Context, name string, enabled bool, cfg map[string]any) (*domain.FeatureFlag, error) {
	f, err := s.engine.UpdateFlag(name, enabled, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("feature flag updated", "flag", name, "enabled", enabled)
	if s.store != nil {
		if err := s.store.Save(ctx, f); err != nil {
			s.logger.Warn("could not persist feature flag", "flag", name, "err", err)
		}
	}
	return &f, nil
}

// Restore applies persisted overrides on top of the startup configuration.
// A persisted flag takes precedence over the environment: its enabled state
// and every config key it carries replace the ROLLOUT_* values, so env
// changes to those keys only apply once the override is removed from the
// store. Overrides for flags the engine does not know, or that fail
// validation, are skipped.
func (s *service) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	saved, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, f := range saved {
		if _, err := s.engine.Restore(f); err != nil {
			if errors.Is(err, domain.ErrConfiguration) {
				s.logger.Warn("skipping persisted feature flag", "flag", f.Name, "err", err)
				continue
			}
			return err
		}
		s.logger.Info("restored feature flag", "flag", f.Name, "enabled", f.Enabled)
	}
	return nil
}
