package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"journal-sync/internal/model"
)

// SessionSummary aggregates the audit trail of one journal session.
type SessionSummary struct {
	SessionID    string     `json:"session_id"`
	TotalEvents  int        `json:"total_events"`
	SavedCount   int        `json:"saved_count"`
	FailedCount  int        `json:"failed_count"`
	LastEventAt  *time.Time `json:"last_event_at,omitempty"`
	LastFailures []string   `json:"last_failures,omitempty"`
}

// Repository stores the sync audit trail fed by the notification worker.
type Repository interface {
	RecordNotification(ctx context.Context, n model.Notification) error
	ListNotifications(ctx context.Context, sessionID string, limit int) ([]model.Notification, error)
	GetSessionSummary(ctx context.Context, sessionID string) (*SessionSummary, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) RecordNotification(ctx context.Context, n model.Notification) error {
	// Redelivered messages carry the same id and are ignored.
	query := `INSERT IGNORE INTO sync_events
		(id, session_id, kind, operation, lesson_id, student_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, n.ID, n.SessionID, n.Kind, n.Operation,
		nullInt64(n.LessonID), nullInt64(n.StudentID), n.Message, n.CreatedAt)
	return err
}

func (r *repository) ListNotifications(ctx context.Context, sessionID string, limit int) ([]model.Notification, error) {
	query := `SELECT id, session_id, kind, operation, lesson_id, student_id, message, created_at
			  FROM sync_events WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Notification
	for rows.Next() {
		var n model.Notification
		var lessonID, studentID sql.NullInt64
		err := rows.Scan(&n.ID, &n.SessionID, &n.Kind, &n.Operation,
			&lessonID, &studentID, &n.Message, &n.CreatedAt)
		if err != nil {
			return nil, err
		}
		if lessonID.Valid {
			n.LessonID = &lessonID.Int64
		}
		if studentID.Valid {
			n.StudentID = &studentID.Int64
		}
		events = append(events, n)
	}

	return events, rows.Err()
}

func (r *repository) GetSessionSummary(ctx context.Context, sessionID string) (*SessionSummary, error) {
	query := `SELECT 
		COUNT(*) as total_events,
		COUNT(CASE WHEN kind = 'info' THEN 1 END) as saved_count,
		COUNT(CASE WHEN kind = 'error' THEN 1 END) as failed_count,
		MAX(created_at) as last_event_at
	FROM sync_events WHERE session_id = ?`

	summary := SessionSummary{SessionID: sessionID}
	var lastEventAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&summary.TotalEvents, &summary.SavedCount, &summary.FailedCount, &lastEventAt,
	)
	if err != nil {
		return nil, err
	}
	if lastEventAt.Valid {
		summary.LastEventAt = &lastEventAt.Time
	}

	errorQuery := `SELECT message FROM sync_events 
				   WHERE session_id = ? AND kind = 'error' ORDER BY created_at DESC LIMIT 5`

	rows, err := r.db.QueryContext(ctx, errorQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query last failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, fmt.Errorf("failed to scan failure message: %w", err)
		}
		summary.LastFailures = append(summary.LastFailures, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read last failures: %w", err)
	}

	return &summary, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
