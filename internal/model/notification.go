package model

import "time"

type NotificationKind string

const (
	NotificationError NotificationKind = "error"
	NotificationInfo  NotificationKind = "info"
)

// Operation names the store action a notification is about.
type Operation string

const (
	OpLoadAttendance   Operation = "load_attendance"
	OpUpdateAttendance Operation = "update_attendance"
	OpLoadGrades       Operation = "load_grades"
	OpUpdateGrade      Operation = "update_grade"
	OpLoadAttestation  Operation = "load_attestation"
	OpLoadStats        Operation = "load_stats"
	OpLoadLessons      Operation = "load_lessons"
)

// Notification is a dismissible, user-visible event emitted by a journal session.
type Notification struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Kind      NotificationKind `json:"kind"`
	Operation Operation        `json:"operation"`
	LessonID  *int64           `json:"lesson_id,omitempty"`
	StudentID *int64           `json:"student_id,omitempty"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}
