package recording

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/kaireichart/live-location-map/location"
)

// ErrTrackNotFound is returned for unknown track ids.
var ErrTrackNotFound = errors.New("track not found")

const timeLayout = time.RFC3339Nano

const schema = `
	CREATE TABLE IF NOT EXISTS track (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT
	);

	CREATE TABLE IF NOT EXISTS point (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		track_id INTEGER NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		received_at TEXT NOT NULL,
		FOREIGN KEY(track_id) REFERENCES track(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS point_track_id_idx ON point (track_id, id);
`

// Store is the SQLite archive of recorded tracks.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// Foreign keys are off per connection unless asked for.
	dsn := path + "?_foreign_keys=on"
	if strings.Contains(path, "?") {
		dsn = path + "&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" usable.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping recording database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create recording schema: %w", err)
	}

	log.Info().Str("path", path).Msg("recording database initialized")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartTrack creates a new open track and returns its id.
func (s *Store) StartTrack(clientID, topic string, at time.Time) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO track (client_id, topic, started_at) VALUES (?, ?, ?)",
		clientID, topic, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start track: %w", err)
	}
	return res.LastInsertId()
}

// EndTrack stamps the end time of a track.
func (s *Store) EndTrack(id int64, at time.Time) error {
	res, err := s.db.Exec("UPDATE track SET ended_at = ? WHERE id = ?", at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to end track %d: %w", id, err)
	}
	return requireRow(res)
}

// AddPoint appends one sample to a track.
func (s *Store) AddPoint(trackID int64, pos location.Position) error {
	_, err := s.db.Exec(
		"INSERT INTO point (track_id, latitude, longitude, received_at) VALUES (?, ?, ?, ?)",
		trackID, pos.Latitude, pos.Longitude, pos.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to add point to track %d: %w", trackID, err)
	}
	return nil
}

// Tracks lists every track, newest first.
func (s *Store) Tracks() ([]Track, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.client_id, t.topic, t.started_at, t.ended_at, COUNT(p.id)
		FROM track t
		LEFT JOIN point p ON p.track_id = t.id
		GROUP BY t.id
		ORDER BY t.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := []Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *t)
	}
	return tracks, rows.Err()
}

// Track returns one track.
func (s *Store) Track(id int64) (*Track, error) {
	row := s.db.QueryRow(`
		SELECT t.id, t.client_id, t.topic, t.started_at, t.ended_at,
			(SELECT COUNT(*) FROM point p WHERE p.track_id = t.id)
		FROM track t
		WHERE t.id = ?
	`, id)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	return t, err
}

// Points returns the samples of a track in arrival order.
func (s *Store) Points(trackID int64) ([]location.Position, error) {
	rows, err := s.db.Query(
		"SELECT latitude, longitude, received_at FROM point WHERE track_id = ? ORDER BY id",
		trackID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	points := []location.Position{}
	for rows.Next() {
		var p location.Position
		var receivedAt string
		if err := rows.Scan(&p.Latitude, &p.Longitude, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		if p.Timestamp, err = time.Parse(timeLayout, receivedAt); err != nil {
			return nil, fmt.Errorf("invalid point timestamp %q: %w", receivedAt, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// DeleteTrack removes a track and its points.
func (s *Store) DeleteTrack(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM point WHERE track_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	res, err := tx.Exec("DELETE FROM track WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (*Track, error) {
	var t Track
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&t.ID, &t.ClientID, &t.Topic, &startedAt, &endedAt, &t.PointCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	var err error
	if t.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("invalid track start %q: %w", startedAt, err)
	}
	if endedAt.Valid {
		ended, err := time.Parse(timeLayout, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid track end %q: %w", endedAt.String, err)
		}
		t.EndedAt = &ended
	}
	return &t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTrackNotFound
	}
	return nil
}
