package models

import (
	"encoding/json"
	"time"
)

type Favorite struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	PerfumeName string    `json:"perfume_name"`
	Brand       string    `json:"brand"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type ChatHistory struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

type ImageSearch struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"user_id"`
	ImageURL    string          `json:"image_url,omitempty"`
	PerfumeName string          `json:"perfume_name"`
	Confidence  float64         `json:"confidence"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Recommendation struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	PerfumeName string    `json:"perfume_name"`
	Brand       string    `json:"brand"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

type DashboardCounts struct {
	Favorites           int `json:"favorites"`
	Chats               int `json:"chats"`
	ImageSearches       int `json:"image_searches"`
	Recommendations     int `json:"recommendations"`
	UnreadNotifications int `json:"unread_notifications"`
}
