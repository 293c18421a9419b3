package model

const (
	MinGrade = 2
	MaxGrade = 5
)

// ValidGrade reports whether g is on the 2..5 scale.
func ValidGrade(g int) bool {
	return g >= MinGrade && g <= MaxGrade
}

// GradeEntry is the value stored per journal cell. A nil WorkNumber means the
// grade applies to the lesson's own work.
type GradeEntry struct {
	Grade      int  `json:"grade"`
	WorkNumber *int `json:"work_number"`
}

// EffectiveWorkNumber resolves the work the grade was recorded against.
func (g GradeEntry) EffectiveWorkNumber(lesson *Lesson) *int {
	if g.WorkNumber != nil {
		return g.WorkNumber
	}
	if lesson != nil {
		return lesson.WorkNumber
	}
	return nil
}

type GradeRecord struct {
	LessonID   int64 `json:"lesson_id"`
	StudentID  int64 `json:"student_id"`
	Grade      int   `json:"grade"`
	WorkNumber *int  `json:"work_number"`
}

func (r GradeRecord) Entry() GradeEntry {
	return GradeEntry{Grade: r.Grade, WorkNumber: r.WorkNumber}
}
