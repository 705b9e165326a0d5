package models

import (
	"time"
)

type Restaurant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ReviewURL string    `json:"review_url,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MenuItem struct {
	ID           int64     `json:"id"`
	RestaurantID int64     `json:"restaurant_id"`
	Name         string    `json:"name"`
	Price        int       `json:"price,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Review struct {
	ID           int64      `json:"id"`
	RestaurantID int64      `json:"restaurant_id"`
	Author       string     `json:"author,omitempty"`
	Rating       int        `json:"rating,omitempty"`
	Content      string     `json:"content"`
	WrittenAt    *time.Time `json:"written_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type ReviewSummary struct {
	ID           int64     `json:"id"`
	RestaurantID int64     `json:"restaurant_id"`
	Content      string    `json:"content"`
	Model        string    `json:"model,omitempty"`
	TokensUsed   int       `json:"tokens_used,omitempty"`
	ReviewCount  int       `json:"review_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Snapshot records an archived raw HTML page captured during a crawl.
type Snapshot struct {
	ID           int64     `json:"id"`
	RestaurantID int64     `json:"restaurant_id"`
	JobID        string    `json:"job_id"`
	Kind         string    `json:"kind"`
	StorageKey   string    `json:"storage_key"`
	URL          string    `json:"url,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	SizeBytes    int64     `json:"size_bytes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
