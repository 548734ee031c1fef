package rollout

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-smart-notifications/internal/config"
	"github.com/go-smart-notifications/internal/domain"
)

// Flag names recognised by the engine.
const (
	FlagBackendRollout        = "backend_rollout"
	FlagDualWrite             = "dual_write"
	FlagAutoMigration         = "auto_migration"
	FlagPerformanceMonitoring = "performance_monitoring"
)

// Config keys of the backend_rollout and performance_monitoring flags.
const (
	KeyRolloutPercentage = "rollout_percentage"
	KeyAllowlist         = "allowlist"
	KeyBlocklist         = "blocklist"
	KeyDefaultBackend    = "default_backend"
	KeySlowThresholdMS   = "slow_threshold_ms"
	KeyLogSlow           = "log_slow"
	KeyCompareBackends   = "compare_backends"
)

// configKeys lists the configuration keys each flag accepts.
var configKeys = map[string][]string{
	FlagBackendRollout:        {KeyRolloutPercentage, KeyAllowlist, KeyBlocklist, KeyDefaultBackend},
	FlagDualWrite:             nil,
	FlagAutoMigration:         nil,
	FlagPerformanceMonitoring: {KeySlowThresholdMS, KeyLogSlow, KeyCompareBackends},
}

// checkConfigKeys rejects keys the named flag does not read. Unknown flag
// names are left to the engine.
func checkConfigKeys(name string, cfg map[string]any) error {
	allowed, ok := configKeys[name]
	if !ok {
		return nil
	}
	var unknown []string
	for k := range cfg {
		if !slices.Contains(allowed, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("flag %s does not accept %s: %w", name, strings.Join(unknown, ", "), domain.ErrBadRequest)
	}
	return nil
}

// FlagsFromConfig builds the startup flag set from environment configuration.
func FlagsFromConfig(r config.Rollout, now time.Time) map[string]domain.FeatureFlag {
	now = now.UTC()
	mk := func(name string, enabled bool, cfg map[string]any) domain.FeatureFlag {
		return domain.FeatureFlag{Name: name, Enabled: enabled, Config: cfg, CreatedAt: now, UpdatedAt: now}
	}
	return map[string]domain.FeatureFlag{
		FlagBackendRollout: mk(FlagBackendRollout, r.RolloutEnabled, map[string]any{
			KeyRolloutPercentage: r.RolloutPercentage,
			KeyAllowlist:         append([]string(nil), r.Allowlist...),
			KeyBlocklist:         append([]string(nil), r.Blocklist...),
			KeyDefaultBackend:    r.DefaultBackend,
		}),
		FlagDualWrite:     mk(FlagDualWrite, r.DualWriteEnabled, nil),
		FlagAutoMigration: mk(FlagAutoMigration, r.AutoMigration, nil),
		FlagPerformanceMonitoring: mk(FlagPerformanceMonitoring, r.PerfMonitoring, map[string]any{
			KeySlowThresholdMS: r.SlowThresholdMS,
			KeyLogSlow:         r.LogSlow,
			KeyCompareBackends: r.CompareBackends,
		}),
	}
}

// deriveSettings turns a flag set into Settings, rejecting values that
// cannot be coerced or are out of range.
func deriveSettings(flags map[string]domain.FeatureFlag) (Settings, error) {
	s := Settings{DefaultBackend: domain.BackendA}

	ro := flags[FlagBackendRollout]
	s.RolloutEnabled = ro.Enabled
	if v, ok := ro.Config[KeyRolloutPercentage]; ok {
		pct, ok := toInt(v)
		if !ok || pct < 0 || pct > 100 {
			return Settings{}, fmt.Errorf("%s must be an integer in 0..100, got %v: %w", KeyRolloutPercentage, v, domain.ErrConfiguration)
		}
		s.RolloutPercentage = pct
	}
	if v, ok := ro.Config[KeyDefaultBackend]; ok && v != nil && v != "" {
		b, ok := domain.ParseBackend(fmt.Sprint(v))
		if !ok {
			return Settings{}, fmt.Errorf("unknown %s %v: %w", KeyDefaultBackend, v, domain.ErrConfiguration)
		}
		s.DefaultBackend = b
	}
	var err error
	if s.Allowlist, err = toSet(ro.Config[KeyAllowlist]); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", KeyAllowlist, err)
	}
	if s.Blocklist, err = toSet(ro.Config[KeyBlocklist]); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", KeyBlocklist, err)
	}

	s.DualWrite = flags[FlagDualWrite].Enabled
	s.AutoMigration = flags[FlagAutoMigration].Enabled

	pm := flags[FlagPerformanceMonitoring]
	s.Monitoring.Enabled = pm.Enabled
	if v, ok := pm.Config[KeySlowThresholdMS]; ok {
		ms, ok := toInt(v)
		if !ok || ms < 0 {
			return Settings{}, fmt.Errorf("%s must be a non-negative integer, got %v: %w", KeySlowThresholdMS, v, domain.ErrConfiguration)
		}
		s.Monitoring.SlowThresholdMS = ms
	}
	s.Monitoring.LogSlow = toBool(pm.Config[KeyLogSlow])
	s.Monitoring.CompareBackends = toBool(pm.Config[KeyCompareBackends])
	return s, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

// toSet accepts []string, []any of strings or a comma-separated string.
func toSet(v any) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = struct{}{}
		}
	}
	switch list := v.(type) {
	case nil:
	case []string:
		for _, s := range list {
			add(s)
		}
	case []any:
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list entry %v is not a string: %w", item, domain.ErrConfiguration)
			}
			add(s)
		}
	case string:
		for _, s := range strings.Split(list, ",") {
			add(s)
		}
	default:
		return nil, fmt.Errorf("expected a list of user ids, got %T: %w", v, domain.ErrConfiguration)
	}
	return set, nil
}
