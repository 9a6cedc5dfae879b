package offer

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status represents offer lifecycle state
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusAccepted, StatusRejected, StatusWithdrawn},
}

// CanTransitionTo reports whether s may move to next. Only pending offers move.
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
	case StatusPending, StatusAccepted, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// Offer is a worker's application to a listing.
type Offer struct {
	ID              uuid.UUID     `db:"id"`
	ListingID       uuid.UUID     `db:"listing_id"`
	WorkerID        uuid.UUID     `db:"worker_id"`
	PosterID        uuid.UUID     `db:"poster_id"`
	Message         string        `db:"message"`
	ProposedCredits sql.NullInt32 `db:"proposed_credits"`
	Status          Status        `db:"status"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
	DecidedAt       sql.NullTime  `db:"decided_at"`
}

// IsPending returns true while the poster has not decided
func (o *Offer) IsPending() bool {
	return o.Status == StatusPending
}

// IsParty reports whether userID is the worker or the poster.
func (o *Offer) IsParty(userID uuid.UUID) bool {
	return o.WorkerID == userID || o.PosterID == userID
}

func toNullInt32(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}
