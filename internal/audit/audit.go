package audit

import (
	"context"
	"database/sql"
	"time"
)

// Entry is one append-only audit record.
type Entry struct {
	UserID       string
	Username     string
	Action       string // e.g. attempt_started, quiz_reissued
	ResourceType string
	ResourceID   string
	Details      string // JSON payload
	IPAddress    string
	UserAgent    string
}

// Sink accepts audit entries. Callers treat it as fire-and-forget: a sink
// failure must never fail the request that produced the entry.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

type SQLSink struct{ db *sql.DB }

func NewSQLSink(db *sql.DB) *SQLSink { return &SQLSink{db: db} }

func (s *SQLSink) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (user_id, username, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.UserID, e.Username, e.Action, e.ResourceType, e.ResourceID, e.Details, e.IPAddress, e.UserAgent, time.Now().Unix())
	return err
}

// Nop discards entries; used in tests.
type Nop struct{}

func (Nop) Append(context.Context, Entry) error { return nil }
