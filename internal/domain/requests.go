package domain

// TriggerRequest asks for a notification for one event. UserID defaults to
// the caller; raising triggers for someone else needs the service or admin
// role.
type TriggerRequest struct {
	UserID           string         `json:"user_id,omitempty"`
	TriggerType      string         `json:"trigger_type" validate:"required,trigger_type"`
	TriggerData      map[string]any `json:"trigger_data"`
	DedupWindowHours int            `json:"dedup_window_hours,omitempty" validate:"omitempty,min=1,max=720"`
}

type BatchTriggerItem struct {
	TriggerType string         `json:"trigger_type" validate:"required,trigger_type"`
	TriggerData map[string]any `json:"trigger_data"`
}

type BatchTriggerRequest struct {
	UserID           string             `json:"user_id,omitempty"`
	Triggers         []BatchTriggerItem `json:"triggers" validate:"required,min=1,max=50,dive"`
	DedupWindowHours int                `json:"dedup_window_hours,omitempty" validate:"omitempty,min=1,max=720"`
}

type FlagUpdateRequest struct {
	Enabled *bool          `json:"enabled" validate:"required"`
	Config  map[string]any `json:"config,omitempty"`
}
