package journal

import (
	"context"
	"errors"
	"sync"

	"journal-sync/internal/model"
)

var errGateway = errors.New("gateway down")

// fakeGateway records calls; hooks let a test block or fail a call.
type fakeGateway struct {
	mu sync.Mutex

	attendance  []model.AttendanceRecord
	grades      []model.GradeRecord
	lessons     []model.Lesson
	students    []model.Student
	attestation []model.AttestationResult
	stats       *model.JournalStats

	loadAttendanceErr  error
	loadGradesErr      error
	loadLessonsErr     error
	loadAttestationErr error
	loadStatsErr       error

	// onWrite runs for every upsert/delete before it returns; its error is the call result.
	onWrite func(op string, key model.Key) error

	loadAttendanceCalls  int
	loadGradesCalls      int
	loadAttestationCalls int
	statsCalls           int
	writes               []string
	upserts              []model.AttendanceBulkRequest
	gradeUpserts         []model.GradeRecord
	// writeCtxErrs holds ctx.Err() of every write as seen when the call returned.
	writeCtxErrs []error
}

func (f *fakeGateway) write(ctx context.Context, op string, key model.Key) error {
	f.mu.Lock()
	f.writes = append(f.writes, op)
	hook := f.onWrite
	f.mu.Unlock()

	var err error
	if hook != nil {
		err = hook(op, key)
	}

	f.mu.Lock()
	f.writeCtxErrs = append(f.writeCtxErrs, ctx.Err())
	f.mu.Unlock()
	return err
}

func (f *fakeGateway) LoadAttendance(_ context.Context, _ int64, _ []int64) ([]model.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadAttendanceCalls++
	if f.loadAttendanceErr != nil {
		return nil, f.loadAttendanceErr
	}
	return append([]model.AttendanceRecord(nil), f.attendance...), nil
}

func (f *fakeGateway) UpsertAttendance(ctx context.Context, req model.AttendanceBulkRequest) error {
	f.mu.Lock()
	f.upserts = append(f.upserts, req)
	f.mu.Unlock()
	return f.write(ctx, "upsert_attendance", model.Key{LessonID: req.LessonID, StudentID: req.Records[0].StudentID})
}

func (f *fakeGateway) DeleteAttendance(ctx context.Context, lessonID, studentID int64) error {
	return f.write(ctx, "delete_attendance", model.Key{LessonID: lessonID, StudentID: studentID})
}

func (f *fakeGateway) LoadGrades(_ context.Context, _ []int64) ([]model.GradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadGradesCalls++
	if f.loadGradesErr != nil {
		return nil, f.loadGradesErr
	}
	return append([]model.GradeRecord(nil), f.grades...), nil
}

func (f *fakeGateway) UpsertGrade(ctx context.Context, record model.GradeRecord) error {
	f.mu.Lock()
	f.gradeUpserts = append(f.gradeUpserts, record)
	f.mu.Unlock()
	return f.write(ctx, "upsert_grade", model.Key{LessonID: record.LessonID, StudentID: record.StudentID})
}

func (f *fakeGateway) DeleteGrade(ctx context.Context, lessonID, studentID int64) error {
	return f.write(ctx, "delete_grade", model.Key{LessonID: lessonID, StudentID: studentID})
}

func (f *fakeGateway) LoadStats(_ context.Context, q model.StatsQuery) (*model.JournalStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	if f.loadStatsErr != nil {
		return nil, f.loadStatsErr
	}
	if f.stats != nil {
		return f.stats, nil
	}
	return &model.JournalStats{GroupID: q.GroupID}, nil
}

func (f *fakeGateway) LoadAttestation(_ context.Context, _ int64, _ model.Period) ([]model.AttestationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadAttestationCalls++
	if f.loadAttestationErr != nil {
		return nil, f.loadAttestationErr
	}
	return append([]model.AttestationResult(nil), f.attestation...), nil
}

func (f *fakeGateway) LoadLessons(_ context.Context, _ model.LessonQuery) ([]model.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadLessonsErr != nil {
		return nil, f.loadLessonsErr
	}
	return f.lessons, nil
}

func (f *fakeGateway) LoadStudents(_ context.Context, _ int64) ([]model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.students, nil
}

func (f *fakeGateway) statsCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls
}

func (f *fakeGateway) writeContextErrors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.writeCtxErrs...)
}

func (f *fakeGateway) writeLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// countingScheduler counts Schedule calls instead of debouncing.
type countingScheduler struct {
	mu    sync.Mutex
	calls int
}

func (c *countingScheduler) Schedule() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingScheduler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingReporter struct {
	mu    sync.Mutex
	items []model.Notification
}

func (r *recordingReporter) Report(_ context.Context, n model.Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *recordingReporter) all() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.items...)
}

func statusPtr(s model.AttendanceStatus) *model.AttendanceStatus {
	return &s
}

func intPtr(i int) *int {
	return &i
}
