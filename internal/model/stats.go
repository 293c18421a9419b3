package model

import "time"

type StatsQuery struct {
	GroupID   int64
	StartDate time.Time
	EndDate   time.Time
	SubjectID *int64
}

type StudentStats struct {
	StudentID         int64   `json:"student_id"`
	Present           int     `json:"present"`
	Late              int     `json:"late"`
	Excused           int     `json:"excused"`
	Absent            int     `json:"absent"`
	AttendancePercent float64 `json:"attendance_percent"`
	AverageGrade      float64 `json:"average_grade"`
}

// JournalStats is the aggregate the gateway recomputes after edits.
type JournalStats struct {
	GroupID      int64          `json:"group_id"`
	TotalLessons int            `json:"total_lessons"`
	Students     []StudentStats `json:"students"`
}

type AuthTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
