package journal

import (
	"context"
	"fmt"

	"journal-sync/internal/logger"
	"journal-sync/internal/model"
	"journal-sync/pkg/errors"

	"github.com/rs/zerolog"
)

type GradeGateway interface {
	LoadGrades(ctx context.Context, lessonIDs []int64) ([]model.GradeRecord, error)
	UpsertGrade(ctx context.Context, record model.GradeRecord) error
	DeleteGrade(ctx context.Context, lessonID, studentID int64) error
}

// PresenceMarker is the attendance side the grade store marks present.
type PresenceMarker interface {
	Get(lessonID, studentID int64) (model.AttendanceStatus, bool)
	Update(ctx context.Context, lessonID, studentID int64, status *model.AttendanceStatus) error
}

// GradeStore mirrors lesson × student grades with the same optimistic contract
// as AttendanceStore. A saved grade marks an unrecorded or absent student present.
type GradeStore struct {
	cells      *cellMap[model.GradeEntry]
	gateway    GradeGateway
	attendance PresenceMarker
	stats      Scheduler
	reporter   Reporter
	log        zerolog.Logger
}

func NewGradeStore(gateway GradeGateway, attendance PresenceMarker, stats Scheduler, reporter Reporter) *GradeStore {
	return &GradeStore{
		cells:      newCellMap[model.GradeEntry](),
		gateway:    gateway,
		attendance: attendance,
		stats:      stats,
		reporter:   orNop(reporter),
		log:        logger.For("grade_store"),
	}
}

func (s *GradeStore) Load(ctx context.Context, lessonIDs []int64) error {
	if len(lessonIDs) == 0 {
		s.cells.clear()
		return nil
	}

	seq := s.cells.beginLoad()
	records, err := s.gateway.LoadGrades(ctx, lessonIDs)
	if err != nil {
		s.log.Error().Err(err).Int("lessons", len(lessonIDs)).Msg("Failed to load grades")
		s.reporter.Report(ctx, failure(model.OpLoadGrades, nil, err))
		return err
	}

	loaded := make(map[model.Key]model.GradeEntry, len(records))
	for _, r := range records {
		if !model.ValidGrade(r.Grade) {
			s.log.Warn().Int64("lesson_id", r.LessonID).Int64("student_id", r.StudentID).Int("grade", r.Grade).Msg("Skipping out of range grade")
			continue
		}
		loaded[model.Key{LessonID: r.LessonID, StudentID: r.StudentID}] = r.Entry()
	}

	if s.cells.replace(seq, loaded) {
		s.log.Debug().Int("records", len(loaded)).Msg("Grades loaded")
	}
	return nil
}

// Update sets a grade (2..5) with an optional work number, or removes the entry
// when grade is nil. Out of range grades are rejected before touching the store.
//
// An error from the chained attendance update is reported by the attendance
// store and not returned here; the grade itself was saved.
func (s *GradeStore) Update(ctx context.Context, lessonID, studentID int64, grade *int, workNumber *int) error {
	if grade != nil && !model.ValidGrade(*grade) {
		return fmt.Errorf("%w: %d is outside %d..%d", errors.ErrInvalidGrade, *grade, model.MinGrade, model.MaxGrade)
	}

	key := model.Key{LessonID: lessonID, StudentID: studentID}
	var value *model.GradeEntry
	if grade != nil {
		value = &model.GradeEntry{Grade: *grade, WorkNumber: workNumber}
	}
	w := s.cells.apply(key, value)

	// The outcome must reach the store even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	w.wait()

	var err error
	if value == nil {
		err = s.gateway.DeleteGrade(ctx, lessonID, studentID)
	} else {
		err = s.gateway.UpsertGrade(ctx, model.GradeRecord{
			LessonID:   lessonID,
			StudentID:  studentID,
			Grade:      value.Grade,
			WorkNumber: value.WorkNumber,
		})
	}

	reverted := s.cells.settle(w, err)
	if err != nil {
		s.log.Error().
			Err(err).
			Int64("lesson_id", lessonID).
			Int64("student_id", studentID).
			Bool("reverted", reverted).
			Msg("Grade update failed")
		s.reporter.Report(ctx, failure(model.OpUpdateGrade, &key, err))
		return err
	}

	if value != nil && s.attendance != nil {
		status, ok := s.attendance.Get(lessonID, studentID)
		if !ok || status == model.AttendanceStatusAbsent {
			// The attendance update schedules its own stats refresh.
			present := model.AttendanceStatusPresent
			if err := s.attendance.Update(ctx, lessonID, studentID, &present); err != nil {
				s.log.Warn().Err(err).Int64("lesson_id", lessonID).Int64("student_id", studentID).Msg("Could not mark graded student present")
			}
			return nil
		}
	}

	s.stats.Schedule()
	return nil
}

func (s *GradeStore) Get(lessonID, studentID int64) (model.GradeEntry, bool) {
	return s.cells.get(model.Key{LessonID: lessonID, StudentID: studentID})
}

func (s *GradeStore) Snapshot() map[model.Key]model.GradeEntry {
	return s.cells.snapshot()
}

func (s *GradeStore) Len() int {
	return s.cells.len()
}

func (s *GradeStore) Subscribe(l Listener) func() {
	return s.cells.subscribe(l)
}
