package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/drone-mission/internal/mission"
)

// Store provides mission history storage. It records mission lifecycle
// snapshots and landing alignment samples, and serves them back for reporting.
// All write operations are atomic.
type Store interface {
	// RecordMission inserts the mission or replaces the stored record with
	// the same ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - m: Mission snapshot
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	RecordMission(ctx context.Context, m mission.Mission) error

	// RecordAlignment saves one landing alignment sample of a mission.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - missionID: ID of the mission the sample belongs to
	//   - round: 1-based alignment round
	//   - s: Alignment sample
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	RecordAlignment(ctx context.Context, missionID string, round int, s mission.AlignmentSample) error

	// Mission retrieves a mission by its ID.
	//
	// Returns:
	//   - m: Pointer to the mission, nil with ErrNotFound if it does not exist
	//   - error: If retrieval fails or context is cancelled
	Mission(ctx context.Context, id string) (m *mission.Mission, err error)

	// Missions returns all stored missions ordered by start time in ascending order.
	Missions(ctx context.Context) (missions []*mission.Mission, err error)

	// AlignmentSamples returns the alignment samples of a mission ordered by round.
	AlignmentSamples(ctx context.Context, missionID string) (samples []*AlignmentRecord, err error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}
