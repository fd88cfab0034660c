package models

import "time"

type NotificationType string

const (
	NotificationInfo           NotificationType = "info"
	NotificationRecommendation NotificationType = "recommendation"
	NotificationUpdate         NotificationType = "update"
	NotificationWarning        NotificationType = "warning"
	NotificationSuccess        NotificationType = "success"
)

// Notification is a system generated activity feed entry.
// Kind is unique per user so the same trigger never produces two rows.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      string           `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
