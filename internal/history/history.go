// Package history keeps a SQLite record of launch runs and social posts.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/raysh454/coinpilot/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

var ErrRunNotFound = errors.New("run not found")

// Run is one launch attempt.
type Run struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	SessionID  string    `json:"session_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Post is one attempt to publish a message.
type Post struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Status   string    `json:"status"`
	TweetID  string    `json:"tweet_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	PostedAt time.Time `json:"posted_at"`
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPosted    = "posted"
)

// Store persists runs and posts.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" is accepted.
func Open(path string, logger logging.Logger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New runs migrations from schema.sql on db.
func New(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Store{db: db, logger: logger.With(logging.Field{Key: "component", Value: "history"})}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordRun inserts run, assigning an id and timestamps when unset.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Kind == "" {
		run.Kind = "launch"
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, session_id, detail, started_at, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Status, run.SessionID, run.Detail,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	s.logger.Debug("run recorded",
		logging.Field{Key: "run_id", Value: run.ID},
		logging.Field{Key: "status", Value: run.Status})
	return run, nil
}

// GetRun returns ErrRunNotFound for unknown ids.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, session_id, detail, started_at, finished_at
         FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the newest runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, session_id, detail, started_at, finished_at
         FROM runs
         ORDER BY started_at DESC, rowid DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var sessionID, detail sql.NullString
	var started, finished int64
	if err := sc.Scan(&r.ID, &r.Kind, &r.Status, &sessionID, &detail, &started, &finished); err != nil {
		return Run{}, err
	}
	r.SessionID = sessionID.String
	r.Detail = detail.String
	r.StartedAt = time.UnixMilli(started)
	r.FinishedAt = time.UnixMilli(finished)
	return r, nil
}

// RecordPost inserts post, assigning an id and timestamp when unset.
func (s *Store) RecordPost(ctx context.Context, post Post) (Post, error) {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.PostedAt.IsZero() {
		post.PostedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (id, text, status, tweet_id, error, posted_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		post.ID, post.Text, post.Status, post.TweetID, post.Error, post.PostedAt.UnixMilli(),
	)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

// ListPosts returns the newest posts first. limit <= 0 means no limit.
func (s *Store) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, status, tweet_id, error, posted_at
         FROM posts
         ORDER BY posted_at DESC, rowid DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Post{}
	for rows.Next() {
		var p Post
		var tweetID, errText sql.NullString
		var posted int64
		if err := rows.Scan(&p.ID, &p.Text, &p.Status, &tweetID, &errText, &posted); err != nil {
			return nil, err
		}
		p.TweetID = tweetID.String
		p.Error = errText.String
		p.PostedAt = time.UnixMilli(posted)
		out = append(out, p)
	}
	return out, rows.Err()
}
