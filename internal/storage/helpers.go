package storage

import (
	"database/sql"
	"fmt"

	"github.com/roman-kulish/drone-mission/internal/mission"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func toMissionData(m mission.Mission) *missionData {
	d := missionData{
		ID:              m.ID,
		LocationID:      m.LocationID,
		Status:          string(m.Status),
		State:           m.State.String(),
		StartTime:       m.StartTime.UTC(),
		ImagesCaptured:  int64(m.ImagesCaptured),
		AlignmentRounds: int64(m.AlignmentRounds),
	}

	if m.CompletionTime != nil {
		d.CompletionTime = sql.NullTime{
			Time:  m.CompletionTime.UTC(),
			Valid: true,
		}
	}

	if m.Error != "" {
		d.ErrorMessage = sql.NullString{
			String: m.Error,
			Valid:  true,
		}
	}

	return &d
}

func fromMissionData(d *missionData) (*mission.Mission, error) {
	state, err := mission.ParseState(d.State)
	if err != nil {
		return nil, fmt.Errorf("mission %s: %w", d.ID, err)
	}

	m := mission.Mission{
		ID:              d.ID,
		LocationID:      d.LocationID,
		Status:          mission.Status(d.Status),
		State:           state,
		StartTime:       d.StartTime,
		ImagesCaptured:  int(d.ImagesCaptured),
		AlignmentRounds: int(d.AlignmentRounds),
		Error:           d.ErrorMessage.String,
	}

	if d.CompletionTime.Valid {
		t := d.CompletionTime.Time
		m.CompletionTime = &t
	}

	return &m, nil
}
