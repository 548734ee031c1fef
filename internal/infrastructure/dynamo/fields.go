package dynamo

// Attribute names used in key, condition and update expressions.
const (
	fieldNotificationID = "notification_id"
	fieldUserID         = "user_id"
	fieldCreatedAt      = "created_at"
	fieldUpdatedAt      = "updated_at"
	fieldTriggerType    = "trigger_type"
	fieldStatus         = "status"
	fieldIsRead         = "is_read"
	fieldDismissed      = "dismissed"

	userCreatedIndex = "user_id-created_at-index"
)
