package template

import "github.com/go-smart-notifications/internal/domain"

// Template describes how to turn one kind of trigger into notification copy.
type Template struct {
	TriggerType      domain.TriggerType
	Title            string
	Message          string
	DeepLink         string
	Priority         domain.Priority
	NotificationType string
	Conditions       []Condition
}

// MatchesConditions reports whether every condition holds for data.
// A template without conditions matches any payload.
func (t Template) MatchesConditions(data map[string]any) bool {
	for _, c := range t.Conditions {
		if !c.Satisfied(data) {
			return false
		}
	}
	return true
}

// Catalog is an immutable, per-trigger-type ordered list of templates.
type Catalog struct {
	byTrigger map[domain.TriggerType][]Template
}

// NewCatalog registers templates in the given order.
func NewCatalog(templates ...Template) *Catalog {
	c := &Catalog{byTrigger: make(map[domain.TriggerType][]Template)}
	for _, t := range templates {
		t.Conditions = append([]Condition(nil), t.Conditions...)
		c.byTrigger[t.TriggerType] = append(c.byTrigger[t.TriggerType], t)
	}
	return c
}

// FindMatching returns the first registered template for triggerType whose
// conditions hold.
func (c *Catalog) FindMatching(triggerType domain.TriggerType, data map[string]any) (Template, bool) {
	for _, t := range c.byTrigger[triggerType] {
		if t.MatchesConditions(data) {
			return t, true
		}
	}
	return Template{}, false
}

// Templates returns the registered templates for triggerType in order.
func (c *Catalog) Templates(triggerType domain.TriggerType) []Template {
	return append([]Template(nil), c.byTrigger[triggerType]...)
}

// DefaultCatalog holds the built-in financial-education templates. More
// specific templates are registered before general ones.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Template{
			TriggerType:      domain.TriggerPortfolioChange,
			Title:            "Big move: {stock_symbol} changed {change_percent}%",
			Message:          "{stock_symbol} moved {change_percent}% today. Large swings are a good moment to revisit why you hold it.",
			DeepLink:         "/portfolio/holdings/{stock_symbol}",
			Priority:         domain.PriorityHigh,
			NotificationType: "portfolio_alert",
			Conditions:       []Condition{Threshold("min_abs_change_percent", 10)},
		},
		Template{
			TriggerType:      domain.TriggerPortfolioChange,
			Title:            "{stock_symbol} moved {change_percent}% today",
			Message:          "One of your holdings, {stock_symbol}, changed by {change_percent}%. Tap to see what drives daily price moves.",
			DeepLink:         "/portfolio/holdings/{stock_symbol}",
			Priority:         domain.PriorityMedium,
			NotificationType: "portfolio_update",
			Conditions:       []Condition{Threshold("min_abs_change_percent", 5)},
		},
		Template{
			TriggerType:      domain.TriggerRiskChange,
			Title:            "Your portfolio risk rose to {new_risk_level}",
			Message:          "Your portfolio moved from {old_risk_level} to {new_risk_level} risk. Learn how concentration affects risk.",
			DeepLink:         "/portfolio/risk",
			Priority:         domain.PriorityHigh,
			NotificationType: "risk_alert",
			Conditions:       []Condition{BoolEquals("risk_increased", true)},
		},
		Template{
			TriggerType:      domain.TriggerRiskChange,
			Title:            "Your portfolio risk eased to {new_risk_level}",
			Message:          "Your portfolio moved from {old_risk_level} to {new_risk_level} risk. See what changed.",
			DeepLink:         "/portfolio/risk",
			Priority:         domain.PriorityMedium,
			NotificationType: "risk_update",
			Conditions:       []Condition{BoolEquals("risk_increased", false)},
		},
		Template{
			TriggerType:      domain.TriggerEducationalMoment,
			Title:            "Why diversification matters",
			Message:          "Spreading money across different assets can soften the impact of any single loss. Take a two-minute lesson.",
			DeepLink:         "/learn/diversification",
			Priority:         domain.PriorityMedium,
			NotificationType: "education",
			Conditions:       []Condition{Equals("topic", "diversification")},
		},
		Template{
			TriggerType:      domain.TriggerEducationalMoment,
			Title:            "Markets are bumpy: understanding volatility",
			Message:          "Prices move every day. Learn why short-term volatility is normal for long-term investors.",
			DeepLink:         "/learn/volatility",
			Priority:         domain.PriorityMedium,
			NotificationType: "education",
			Conditions:       []Condition{Equals("topic", "volatility")},
		},
		Template{
			TriggerType:      domain.TriggerEducationalMoment,
			Title:            "Learn about {topic}",
			Message:          "A short lesson on {topic} is ready for you.",
			DeepLink:         "/learn/{topic}",
			Priority:         domain.PriorityLow,
			NotificationType: "education",
		},
		Template{
			TriggerType:      domain.TriggerLearningStreak,
			Title:            "{streak_days}-day learning streak!",
			Message:          "A whole month of learning. Keep the habit going.",
			DeepLink:         "/learn/streak",
			Priority:         domain.PriorityHigh,
			NotificationType: "streak",
			Conditions:       []Condition{Threshold("streak_days", 30)},
		},
		Template{
			TriggerType:      domain.TriggerLearningStreak,
			Title:            "{streak_days} days in a row",
			Message:          "You have learned something every day for {streak_days} days. Nice work.",
			DeepLink:         "/learn/streak",
			Priority:         domain.PriorityMedium,
			NotificationType: "streak",
			Conditions:       []Condition{Threshold("streak_days", 7)},
		},
		Template{
			TriggerType:      domain.TriggerLearningStreak,
			Title:            "You're on a {streak_days}-day streak",
			Message:          "Come back tomorrow to keep your streak alive.",
			DeepLink:         "/learn/streak",
			Priority:         domain.PriorityLow,
			NotificationType: "streak",
			Conditions:       []Condition{Threshold("streak_days", 3)},
		},
	)
}
