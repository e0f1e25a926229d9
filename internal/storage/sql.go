package storage

import (
	_ "embed"
)

const (
	upsertMissionSQL = `
INSERT INTO missions (id,
                      location_id,
                      status,
                      state,
                      start_time,
                      completion_time,
                      images_captured,
                      alignment_rounds,
                      error_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET status           = excluded.status,
                               state            = excluded.state,
                               completion_time  = excluded.completion_time,
                               images_captured  = excluded.images_captured,
                               alignment_rounds = excluded.alignment_rounds,
                               error_message    = excluded.error_message`

	selectMissionSQL = `
SELECT
    id,
    location_id,
    status,
    state,
    start_time,
    completion_time,
    images_captured,
    alignment_rounds,
    error_message
FROM missions
WHERE
    id = ?`

	selectMissionsSQL = `
SELECT
    id,
    location_id,
    status,
    state,
    start_time,
    completion_time,
    images_captured,
    alignment_rounds,
    error_message
FROM missions
ORDER BY start_time`

	insertAlignmentSQL = `
INSERT INTO alignment_samples (mission_id,
                               round,
                               timestamp,
                               marker_id,
                               translation_x,
                               translation_y,
                               translation_z,
                               rotation_x,
                               rotation_y,
                               rotation_z,
                               distance_from_center,
                               marker_area,
                               aligned)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectAlignmentSQL = `
SELECT
    id,
    mission_id,
    round,
    timestamp,
    marker_id,
    translation_x,
    translation_y,
    translation_z,
    rotation_x,
    rotation_y,
    rotation_z,
    distance_from_center,
    marker_area,
    aligned
FROM alignment_samples
WHERE
    mission_id = ?
ORDER BY round, id`
)

//go:embed schema.sql
var initSchemaSQL string
