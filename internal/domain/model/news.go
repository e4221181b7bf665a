package model

import "time"

// NewsItem is one piece of gated content.
type NewsItem struct {
	Timestamp   time.Time `json:"timestamp"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
}
