// Package store keeps a history of scans and their verdicts in sqlite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"MediaSteGo/pkg/logging"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/pipeline"
)

// schema.sql creates the scans and verdicts tables.
//
//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

type Store struct {
	*sql.DB
}

// Scan is one batch run
type Scan struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	StartedAt time.Time `json:"startedAt"`
	FileCount int       `json:"fileCount"`
}

// Record is one stored verdict. Details holds the full JSON result.
type Record struct {
	ID         string           `json:"id"`
	ScanID     string           `json:"scanId"`
	Input      string           `json:"input"`
	Path       string           `json:"path,omitempty"`
	MediaType  models.MediaType `json:"mediaType,omitempty"`
	Detected   bool             `json:"detected"`
	Confidence float64          `json:"confidence"`
	Error      string           `json:"error,omitempty"`
	Details    json.RawMessage  `json:"details,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logging.Debug().Str("path", path).Msg("initialized history database")

	return &Store{db}, nil
}

// StartScan creates a scan row and returns its id
func (s *Store) StartScan(ctx context.Context, mode string, files int) (string, error) {
	id := uuid.NewString()
	_, err := s.ExecContext(ctx,
		`INSERT INTO scans (id, mode, started_at, file_count) VALUES (?, ?, ?, ?)`,
		id, mode, time.Now().UnixMilli(), files)
	if err != nil {
		return "", fmt.Errorf("failed to start scan: %w", err)
	}
	return id, nil
}

// SaveResult stores one pipeline result under a scan
func (s *Store) SaveResult(ctx context.Context, scanID string, res *pipeline.Result) (string, error) {
	details, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	rec := Record{
		ID:         uuid.NewString(),
		ScanID:     scanID,
		Input:      res.Input,
		Path:       res.Path,
		MediaType:  mediaTypeOf(res),
		Detected:   res.Detected(),
		Confidence: res.Confidence(),
		Error:      res.Error,
		Details:    details,
		CreatedAt:  time.Now(),
	}
	if rec.Error == "" && res.Verdict != nil {
		rec.Error = res.Verdict.Error
	}
	if err := s.Save(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Save inserts a record. An empty ID gets a fresh uuid.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO verdicts (id, scan_id, input, path, media_type, detected, confidence, error, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.ExecContext(ctx, query,
		rec.ID, rec.ScanID, rec.Input, rec.Path, string(rec.MediaType),
		rec.Detected, rec.Confidence, rec.Error, string(rec.Details), rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}
	return nil
}

const recordColumns = `id, scan_id, input, path, media_type, detected, confidence, error, details, created_at`

// Get returns one record by id
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM verdicts WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Recent returns the latest records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM verdicts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	return collect(rows)
}

// ScanRecords returns the records of one scan in insertion order
func (s *Store) ScanRecords(ctx context.Context, scanID string) ([]Record, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM verdicts WHERE scan_id = ? ORDER BY rowid`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	return collect(rows)
}

// Scans returns the latest scans, newest first
func (s *Store) Scans(ctx context.Context, limit int) ([]Scan, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, mode, started_at, file_count FROM scans ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var (
			sc      Scan
			started int64
		)
		if err := rows.Scan(&sc.ID, &sc.Mode, &started, &sc.FileCount); err != nil {
			return nil, err
		}
		sc.StartedAt = time.UnixMilli(started)
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                              Record
		path, mediaType, errMsg, details sql.NullString
		created                          int64
	)
	err := row.Scan(&rec.ID, &rec.ScanID, &rec.Input, &path, &mediaType,
		&rec.Detected, &rec.Confidence, &errMsg, &details, &created)
	if err != nil {
		return Record{}, err
	}
	rec.Path = path.String
	rec.MediaType = models.MediaType(mediaType.String)
	rec.Error = errMsg.String
	if details.String != "" {
		rec.Details = json.RawMessage(details.String)
	}
	rec.CreatedAt = time.UnixMilli(created)
	return rec, nil
}

func collect(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func mediaTypeOf(res *pipeline.Result) models.MediaType {
	switch {
	case res.Verdict != nil:
		return res.Verdict.MediaType
	case res.Aggregate != nil && res.Aggregate.LSB != nil:
		return res.Aggregate.LSB.MediaType
	case res.Security != nil:
		return res.Security.FileType
	}
	return ""
}
