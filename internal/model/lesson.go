package model

import "time"

type LessonType string

const (
	LessonTypeLecture  LessonType = "LECTURE"
	LessonTypeLab      LessonType = "LAB"
	LessonTypePractice LessonType = "PRACTICE"
)

// Numbered reports whether grades on this lesson type may target another work number.
func (t LessonType) Numbered() bool {
	return t == LessonTypeLab || t == LessonTypePractice
}

type Lesson struct {
	ID              int64      `json:"id"`
	Date            time.Time  `json:"date"`
	LessonNumber    int        `json:"lesson_number"`
	LessonType      LessonType `json:"lesson_type"`
	WorkNumber      *int       `json:"work_number,omitempty"`
	LectureWorkType *string    `json:"lecture_work_type,omitempty"`
	Subgroup        *int       `json:"subgroup,omitempty"`
	IsCancelled     bool       `json:"is_cancelled"`
	SubjectID       int64      `json:"subject_id"`
	GroupID         int64      `json:"group_id"`
}

type Student struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	GroupID  int64  `json:"group_id"`
	Subgroup *int   `json:"subgroup,omitempty"`
}

type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Subject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// LessonQuery scopes the lessons of one journal view.
type LessonQuery struct {
	GroupID   int64
	SubjectID *int64
	StartDate time.Time
	EndDate   time.Time
}
