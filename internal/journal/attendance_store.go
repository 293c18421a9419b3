package journal

import (
	"context"
	"fmt"

	"journal-sync/internal/logger"
	"journal-sync/internal/model"
	"journal-sync/pkg/errors"

	"github.com/rs/zerolog"
)

type AttendanceGateway interface {
	LoadAttendance(ctx context.Context, groupID int64, lessonIDs []int64) ([]model.AttendanceRecord, error)
	UpsertAttendance(ctx context.Context, req model.AttendanceBulkRequest) error
	DeleteAttendance(ctx context.Context, lessonID, studentID int64) error
}

// AttendanceStore mirrors lesson × student attendance for one journal view.
// Updates are applied locally before the gateway call and reverted on failure.
type AttendanceStore struct {
	cells    *cellMap[model.AttendanceStatus]
	gateway  AttendanceGateway
	stats    Scheduler
	reporter Reporter
	log      zerolog.Logger
}

func NewAttendanceStore(gateway AttendanceGateway, stats Scheduler, reporter Reporter) *AttendanceStore {
	return &AttendanceStore{
		cells:    newCellMap[model.AttendanceStatus](),
		gateway:  gateway,
		stats:    stats,
		reporter: orNop(reporter),
		log:      logger.For("attendance_store"),
	}
}

// Load replaces the store with the group's attendance for lessonIDs. An empty
// lesson list clears the store without calling the gateway. On failure the
// previous contents are kept.
func (s *AttendanceStore) Load(ctx context.Context, groupID int64, lessonIDs []int64) error {
	if len(lessonIDs) == 0 {
		s.cells.clear()
		return nil
	}

	seq := s.cells.beginLoad()
	records, err := s.gateway.LoadAttendance(ctx, groupID, lessonIDs)
	if err != nil {
		s.log.Error().Err(err).Int64("group_id", groupID).Int("lessons", len(lessonIDs)).Msg("Failed to load attendance")
		s.reporter.Report(ctx, failure(model.OpLoadAttendance, nil, err))
		return err
	}

	loaded := make(map[model.Key]model.AttendanceStatus, len(records))
	for _, r := range records {
		if !r.Status.Valid() {
			s.log.Warn().Int64("lesson_id", r.LessonID).Int64("student_id", r.StudentID).Str("status", string(r.Status)).Msg("Skipping unknown attendance status")
			continue
		}
		loaded[model.Key{LessonID: r.LessonID, StudentID: r.StudentID}] = r.Status
	}

	if s.cells.replace(seq, loaded) {
		s.log.Debug().Int64("group_id", groupID).Int("records", len(loaded)).Msg("Attendance loaded")
	}
	return nil
}

// Update sets (or with a nil status removes) the attendance of one cell. The
// local value is visible before the gateway call starts.
func (s *AttendanceStore) Update(ctx context.Context, lessonID, studentID int64, status *model.AttendanceStatus) error {
	if status != nil && !status.Valid() {
		return fmt.Errorf("%w: %q", errors.ErrInvalidStatus, *status)
	}

	key := model.Key{LessonID: lessonID, StudentID: studentID}
	w := s.cells.apply(key, status)

	// The outcome must reach the store even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	w.wait()

	var err error
	if status == nil {
		err = s.gateway.DeleteAttendance(ctx, lessonID, studentID)
	} else {
		err = s.gateway.UpsertAttendance(ctx, model.AttendanceBulkRequest{
			LessonID: lessonID,
			Records:  []model.AttendanceStudentStatus{{StudentID: studentID, Status: *status}},
		})
	}

	reverted := s.cells.settle(w, err)
	if err != nil {
		s.log.Error().
			Err(err).
			Int64("lesson_id", lessonID).
			Int64("student_id", studentID).
			Bool("reverted", reverted).
			Msg("Attendance update failed")
		s.reporter.Report(ctx, failure(model.OpUpdateAttendance, &key, err))
		return err
	}

	s.stats.Schedule()
	return nil
}

// Cycle advances the cell to the next quick-entry status.
func (s *AttendanceStore) Cycle(ctx context.Context, lessonID, studentID int64) (model.AttendanceStatus, error) {
	var current *model.AttendanceStatus
	if st, ok := s.Get(lessonID, studentID); ok {
		current = &st
	}
	next := model.NextStatus(current)
	return next, s.Update(ctx, lessonID, studentID, &next)
}

func (s *AttendanceStore) Get(lessonID, studentID int64) (model.AttendanceStatus, bool) {
	return s.cells.get(model.Key{LessonID: lessonID, StudentID: studentID})
}

func (s *AttendanceStore) Snapshot() map[model.Key]model.AttendanceStatus {
	return s.cells.snapshot()
}

func (s *AttendanceStore) Len() int {
	return s.cells.len()
}

// Subscribe registers l for change events and returns its cancel func.
func (s *AttendanceStore) Subscribe(l Listener) func() {
	return s.cells.subscribe(l)
}
