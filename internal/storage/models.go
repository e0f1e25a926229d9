package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/drone-mission/internal/mission"
)

// AlignmentRecord is a stored landing alignment sample
type AlignmentRecord struct {
	ID        int64
	MissionID string
	Round     int
	Timestamp time.Time
	Sample    mission.AlignmentSample
}

type missionData struct {
	ID              string
	LocationID      string
	Status          string
	State           string
	StartTime       time.Time
	CompletionTime  sql.NullTime
	ImagesCaptured  int64
	AlignmentRounds int64
	ErrorMessage    sql.NullString
}

type scanner interface {
	Scan(dest ...any) error
}

func (d *missionData) scan(row scanner) error {
	return row.Scan(
		&d.ID,
		&d.LocationID,
		&d.Status,
		&d.State,
		&d.StartTime,
		&d.CompletionTime,
		&d.ImagesCaptured,
		&d.AlignmentRounds,
		&d.ErrorMessage,
	)
}
