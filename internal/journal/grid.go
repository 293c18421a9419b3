package journal

import (
	"sort"

	"journal-sync/internal/model"
)

// AttestationView is the read side of the attestation overlay.
type AttestationView interface {
	Lookup(studentID int64) (model.AttestationResult, bool)
	Period() model.Period
}

type CellGrade struct {
	Grade      int  `json:"grade"`
	WorkNumber *int `json:"work_number,omitempty"`
	// OtherWork is set when the grade targets a work other than the lesson's own.
	OtherWork bool `json:"other_work"`
}

type Cell struct {
	LessonID  int64                   `json:"lesson_id"`
	Status    *model.AttendanceStatus `json:"status,omitempty"`
	Grade     *CellGrade              `json:"grade,omitempty"`
	Cancelled bool                    `json:"cancelled,omitempty"`
}

type Row struct {
	Student     model.Student            `json:"student"`
	Cells       []Cell                   `json:"cells"`
	Attestation *model.AttestationResult `json:"attestation"`
	// AttestationAvailable is false when no overlay is loaded or the student has no result.
	AttestationAvailable bool `json:"attestation_available"`
}

type Grid struct {
	Lessons []model.Lesson `json:"lessons"`
	Rows    []Row          `json:"rows"`
	Period  model.Period   `json:"period"`
}

// BuildGrid projects lessons × students with their attendance, grades and
// attestation. Lessons are ordered by date then lesson number; students keep
// the given order.
func BuildGrid(
	lessons []model.Lesson,
	students []model.Student,
	attendance map[model.Key]model.AttendanceStatus,
	grades map[model.Key]model.GradeEntry,
	overlay AttestationView,
) Grid {
	ordered := make([]model.Lesson, len(lessons))
	copy(ordered, lessons)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].LessonNumber < ordered[j].LessonNumber
	})

	grid := Grid{Lessons: ordered, Rows: make([]Row, 0, len(students)), Period: model.PeriodAll}
	if overlay != nil {
		grid.Period = overlay.Period()
	}

	for _, student := range students {
		row := Row{Student: student, Cells: make([]Cell, 0, len(ordered))}

		for i := range ordered {
			lesson := &ordered[i]
			key := model.Key{LessonID: lesson.ID, StudentID: student.ID}
			cell := Cell{LessonID: lesson.ID, Cancelled: lesson.IsCancelled}

			if status, ok := attendance[key]; ok {
				st := status
				cell.Status = &st
			}
			if entry, ok := grades[key]; ok {
				cell.Grade = projectGrade(entry, lesson)
			}
			row.Cells = append(row.Cells, cell)
		}

		if overlay != nil {
			if result, ok := overlay.Lookup(student.ID); ok {
				r := result
				row.Attestation = &r
				row.AttestationAvailable = true
			}
		}
		grid.Rows = append(grid.Rows, row)
	}

	return grid
}

func projectGrade(entry model.GradeEntry, lesson *model.Lesson) *CellGrade {
	g := &CellGrade{Grade: entry.Grade, WorkNumber: entry.EffectiveWorkNumber(lesson)}
	if lesson.LessonType.Numbered() && entry.WorkNumber != nil {
		g.OtherWork = lesson.WorkNumber == nil || *lesson.WorkNumber != *entry.WorkNumber
	}
	return g
}
