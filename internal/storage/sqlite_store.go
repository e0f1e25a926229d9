package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roman-kulish/drone-mission/internal/mission"
)

// ErrNotFound is returned when the requested mission is not stored
var ErrNotFound = errors.New("not found")

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	now    func() time.Time

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)
var _ mission.Recorder = (*SqliteStore)(nil)

// NewSqliteStore creates a new store backed by the Sqlite database at dbPath.
// Connections are opened and the schema is initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{
		dbPath: dbPath,
		now:    time.Now,
	}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// the read-only connection cannot create the database file
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) RecordMission(ctx context.Context, m mission.Mission) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, upsertMissionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	data := toMissionData(m)

	if _, err = stmt.ExecContext(
		ctx,
		data.ID,
		data.LocationID,
		data.Status,
		data.State,
		data.StartTime,
		data.CompletionTime,
		data.ImagesCaptured,
		data.AlignmentRounds,
		data.ErrorMessage,
	); err != nil {
		return fmt.Errorf("upserting mission %s: %w", m.ID, err)
	}
	return nil
}

func (s *SqliteStore) RecordAlignment(ctx context.Context, missionID string, round int, a mission.AlignmentSample) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertAlignmentSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(
		ctx,
		missionID,
		round,
		s.now().UTC(),
		a.MarkerID,
		a.Translation.X,
		a.Translation.Y,
		a.Translation.Z,
		a.Rotation.X,
		a.Rotation.Y,
		a.Rotation.Z,
		a.DistanceFromCenter,
		a.MarkerArea,
		a.Aligned,
	); err != nil {
		return fmt.Errorf("inserting alignment sample: %w", err)
	}
	return nil
}

func (s *SqliteStore) Mission(ctx context.Context, id string) (m *mission.Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectMissionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data missionData
	if err = data.scan(stmt.QueryRowContext(ctx, id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: mission %s", ErrNotFound, id)
			return
		}
		err = fmt.Errorf("scanning mission: %w", err)
		return
	}

	return fromMissionData(&data)
}

func (s *SqliteStore) Missions(ctx context.Context) (missions []*mission.Mission, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectMissionsSQL)
	if err != nil {
		err = fmt.Errorf("querying missions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data missionData
		if err = data.scan(rows); err != nil {
			err = fmt.Errorf("scanning mission: %w", err)
			return
		}

		var m *mission.Mission
		if m, err = fromMissionData(&data); err != nil {
			return
		}
		missions = append(missions, m)
	}

	err = rows.Err()
	return
}

func (s *SqliteStore) AlignmentSamples(ctx context.Context, missionID string) (samples []*AlignmentRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectAlignmentSQL, missionID)
	if err != nil {
		err = fmt.Errorf("querying alignment samples: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r AlignmentRecord
		if err = rows.Scan(
			&r.ID,
			&r.MissionID,
			&r.Round,
			&r.Timestamp,
			&r.Sample.MarkerID,
			&r.Sample.Translation.X,
			&r.Sample.Translation.Y,
			&r.Sample.Translation.Z,
			&r.Sample.Rotation.X,
			&r.Sample.Rotation.Y,
			&r.Sample.Rotation.Z,
			&r.Sample.DistanceFromCenter,
			&r.Sample.MarkerArea,
			&r.Sample.Aligned,
		); err != nil {
			err = fmt.Errorf("scanning alignment sample: %w", err)
			return
		}
		samples = append(samples, &r)
	}

	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
