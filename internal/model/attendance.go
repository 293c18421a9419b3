package model

import (
	"fmt"
	"strings"
)

// AttendanceStatus is the recorded presence of a student at a lesson.
// An unset status is represented by the absence of an entry, never by a value.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusExcused, AttendanceStatusAbsent:
		return true
	default:
		return false
	}
}

func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	status := AttendanceStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown attendance status %q", s)
	}
	return status, nil
}

// NextStatus returns the quick-entry successor of the current status.
// The cycle wraps from ABSENT back to PRESENT; an unset cell starts at PRESENT.
func NextStatus(current *AttendanceStatus) AttendanceStatus {
	if current == nil {
		return AttendanceStatusPresent
	}
	switch *current {
	case AttendanceStatusPresent:
		return AttendanceStatusLate
	case AttendanceStatusLate:
		return AttendanceStatusExcused
	case AttendanceStatusExcused:
		return AttendanceStatusAbsent
	default:
		return AttendanceStatusPresent
	}
}

// Key addresses one journal cell.
type Key struct {
	LessonID  int64
	StudentID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.LessonID, k.StudentID)
}

// AttendanceRecord is the wire shape of one attendance entry.
type AttendanceRecord struct {
	LessonID  int64            `json:"lesson_id"`
	StudentID int64            `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
}

type AttendanceStudentStatus struct {
	StudentID int64            `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
}

// AttendanceBulkRequest is the upsert body; the stores always send a single record.
type AttendanceBulkRequest struct {
	LessonID int64                     `json:"lesson_id"`
	Records  []AttendanceStudentStatus `json:"records"`
}
