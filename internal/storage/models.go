package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Outlet is one row of the outlets table.
type Outlet struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Hours     string    `json:"hours"`
	Area      string    `json:"area"`
	Services  string    `json:"services"`
	ScrapedAt time.Time `json:"scraped_at,omitzero"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Product is a catalogue entry. VectorID is set once the product has been
// embedded.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	VectorID    string    `json:"vector_id,omitempty"`
}

// Interaction records one chat turn and the decision behind the reply.
type Interaction struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	UserText   string    `json:"user_text"`
	Action     string    `json:"action"`
	Rule       string    `json:"rule"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	Reply      string    `json:"reply"`
	Status     string    `json:"status"` // "completed", "unavailable", "error"
}

// Job is a unit of background work.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
