package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/pkg/database/databasetest"
)

func TestRepositoryStopsWhenRowsAffectedFails(t *testing.T) {
	ctx := context.Background()
	convID, userID := uuid.New(), uuid.New()

	tests := []struct {
		name string
		run  func(Repository) error
	}{
		{"mark read", func(r Repository) error {
			_, err := r.MarkRead(ctx, convID, userID)
			return err
		}},
		{"toggle reaction", func(r Repository) error {
			_, err := r.ToggleReaction(ctx, uuid.New(), userID, "👍")
			return err
		}},
		{"increment sent", func(r Repository) error {
			_, err := r.IncrementSentIfBelow(ctx, convID, userID, 3)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, log := databasetest.BrokenResultDB()
			defer db.Close()

			if err := tt.run(NewRepository(db)); !errors.Is(err, databasetest.ErrRowsAffected) {
				t.Fatalf("err = %v, want rows affected failure", err)
			}
			// The follow-up statement must not run on an unknown row count.
			if n := len(log.Queries()); n != 1 {
				t.Fatalf("executed %d statements, want 1", n)
			}
		})
	}
}
