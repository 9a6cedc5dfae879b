package listing

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status represents listing lifecycle state
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var transitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress},
	StatusInProgress: {StatusCompleted},
}

// CanTransitionTo reports whether s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid checks the value against the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Listing is a posted job with a fixed credit price.
type Listing struct {
	ID          uuid.UUID    `db:"id"`
	OwnerID     uuid.UUID    `db:"owner_id"`
	Title       string       `db:"title"`
	Description string       `db:"description"`
	Category    string       `db:"category"`
	Credits     int          `db:"credits"`
	Status      Status       `db:"status"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

// IsOwnedBy returns true if userID posted the listing
func (l *Listing) IsOwnedBy(userID uuid.UUID) bool {
	return l.OwnerID == userID
}

// IsOpen returns true while the listing accepts offers
func (l *Listing) IsOpen() bool {
	return l.Status == StatusOpen
}

// Filter narrows List results.
type Filter struct {
	Status   Status
	OwnerID  *uuid.UUID
	Category string
	Query    string
	Limit    int
	Offset   int
}
