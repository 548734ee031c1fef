package domain

import (
	"fmt"
	"time"
)

// similarityKeys names the trigger-data field that distinguishes one event
// from another within a trigger type. Types absent here match on type alone.
var similarityKeys = map[TriggerType]string{
	TriggerEducationalMoment: "topic",
	TriggerRiskChange:        "new_risk_level",
	TriggerPortfolioChange:   "stock_symbol",
}

// Similar reports whether the stored notification n makes a new notification
// described by q a repeat. Timestamps are compared in UTC.
func Similar(n *Notification, q SimilarQuery) bool {
	if n == nil || n.Dismissed {
		return false
	}
	if n.UserID != q.UserID || n.TriggerType != q.TriggerType {
		return false
	}
	if NormalizeTime(n.CreatedAt).Before(NormalizeTime(q.Since)) {
		return false
	}
	return SameEvent(q.TriggerType, n.TriggerData, q.TriggerData)
}

// SameEvent applies the per-trigger-type equality rule to two payloads.
// At most one learning streak notification is active at a time, so streaks
// always match.
func SameEvent(t TriggerType, existing, incoming map[string]any) bool {
	if t == TriggerLearningStreak {
		return true
	}
	key, ok := similarityKeys[t]
	if !ok {
		return true
	}
	a, aok := existing[key]
	b, bok := incoming[key]
	if !aok || !bok {
		return aok == bok
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// NormalizeTime converts t to UTC. Values read back without a zone are
// already reported in UTC by the drivers, so this only shifts zoned values.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC()
}

// FirstSimilar scans candidates, newest first, for the first one similar to q.
// Backends that cannot express the rule in their query language filter with it.
func FirstSimilar(candidates []Notification, q SimilarQuery) *Notification {
	for i := range candidates {
		if Similar(&candidates[i], q) {
			n := candidates[i]
			return &n
		}
	}
	return nil
}
