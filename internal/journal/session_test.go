package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"journal-sync/internal/model"
	"journal-sync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	items []model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, item model.Notification) error {
	n.mu.Lock()
	n.items = append(n.items, item)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count(kind model.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, it := range n.items {
		if it.Kind == kind {
			c++
		}
	}
	return c
}

func newJournalGateway() *fakeGateway {
	day := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	return &fakeGateway{
		lessons: []model.Lesson{
			{ID: 1, Date: day, LessonNumber: 1, LessonType: model.LessonTypeLecture},
			{ID: 2, Date: day, LessonNumber: 2, LessonType: model.LessonTypeLab, WorkNumber: intPtr(1)},
		},
		students:    []model.Student{{ID: 10, FullName: "Ivanova"}, {ID: 11, FullName: "Petrov"}},
		attendance:  []model.AttendanceRecord{{LessonID: 1, StudentID: 10, Status: model.AttendanceStatusPresent}},
		grades:      []model.GradeRecord{{LessonID: 2, StudentID: 11, Grade: 4}},
		attestation: []model.AttestationResult{{StudentID: 10, TotalScore: 40, IsPassing: true}},
	}
}

func TestSessionOpenBuildsGrid(t *testing.T) {
	gw := newJournalGateway()
	s := NewSession("s1", SessionParams{GroupID: 7, Period: model.PeriodFirst}, gw, SessionOptions{StatsDebounce: 10 * time.Millisecond})
	defer s.Close()

	require.NoError(t, s.Open(context.Background()))

	grid := s.Grid()
	require.Len(t, grid.Rows, 2)
	require.NotNil(t, grid.Rows[0].Cells[0].Status)
	assert.Equal(t, model.AttendanceStatusPresent, *grid.Rows[0].Cells[0].Status)
	assert.Equal(t, 4, grid.Rows[1].Cells[1].Grade.Grade)
	assert.True(t, grid.Rows[0].AttestationAvailable)
	assert.False(t, grid.Rows[1].AttestationAvailable)

	_, _, ok := s.Stats.Latest()
	assert.True(t, ok)
	assert.Equal(t, []int64{1, 2}, s.LessonIDs())
}

func TestSessionOpenFailsWithoutLessons(t *testing.T) {
	gw := newJournalGateway()
	gw.loadLessonsErr = errGateway
	s := NewSession("s1", SessionParams{GroupID: 7}, gw, SessionOptions{})
	defer s.Close()

	assert.ErrorIs(t, s.Open(context.Background()), errGateway)
	assert.Len(t, s.Notifications().List(), 1)
}

func TestSessionDebouncesStatsAcrossEdits(t *testing.T) {
	gw := newJournalGateway()
	s := NewSession("s1", SessionParams{GroupID: 7}, gw, SessionOptions{StatsDebounce: 40 * time.Millisecond})
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))
	base := gw.statsCallCount()

	ctx := context.Background()
	require.NoError(t, s.Attendance.Update(ctx, 1, 11, statusPtr(model.AttendanceStatusLate)))
	require.NoError(t, s.Grades.Update(ctx, 2, 10, intPtr(5), nil))
	require.NoError(t, s.Grades.Update(ctx, 2, 11, nil, nil))
	_, err := s.Attendance.Cycle(ctx, 1, 10)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return gw.statsCallCount() == base+1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, base+1, gw.statsCallCount())
}

func TestSessionCloseCancelsPendingRefresh(t *testing.T) {
	gw := newJournalGateway()
	s := NewSession("s1", SessionParams{GroupID: 7}, gw, SessionOptions{StatsDebounce: 30 * time.Millisecond})
	require.NoError(t, s.Open(context.Background()))
	base := gw.statsCallCount()

	require.NoError(t, s.Attendance.Update(context.Background(), 1, 11, statusPtr(model.AttendanceStatusLate)))
	s.Close()
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, base, gw.statsCallCount())
}

func TestSessionNotifications(t *testing.T) {
	gw := newJournalGateway()
	notifier := &recordingNotifier{}
	s := NewSession("s1", SessionParams{GroupID: 7}, gw, SessionOptions{Notifier: notifier})
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))

	require.NoError(t, s.Attendance.Update(context.Background(), 1, 11, statusPtr(model.AttendanceStatusLate)))
	gw.onWrite = func(string, model.Key) error { return errGateway }
	assert.Error(t, s.Attendance.Update(context.Background(), 1, 11, statusPtr(model.AttendanceStatusAbsent)))

	assert.Equal(t, 1, notifier.count(model.NotificationInfo))
	assert.Equal(t, 1, notifier.count(model.NotificationError))

	inbox := s.Notifications().List()
	require.Len(t, inbox, 1)
	assert.Equal(t, "s1", inbox[0].SessionID)
	assert.Equal(t, model.OpUpdateAttendance, inbox[0].Operation)
	assert.NotEmpty(t, inbox[0].ID)

	assert.True(t, s.Notifications().Dismiss(inbox[0].ID))
	assert.Empty(t, s.Notifications().List())
	assert.False(t, s.Notifications().Dismiss(inbox[0].ID))
}

func TestSessionSetPeriod(t *testing.T) {
	gw := newJournalGateway()
	s := NewSession("s1", SessionParams{GroupID: 7, Period: model.PeriodFirst}, gw, SessionOptions{})
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))
	require.Equal(t, 1, s.Attestation.Len())

	require.NoError(t, s.SetPeriod(context.Background(), model.PeriodAll))
	assert.Equal(t, 0, s.Attestation.Len())
	assert.Equal(t, model.PeriodAll, s.Params().Period)
	assert.False(t, s.Grid().Rows[0].AttestationAvailable)
}

func TestSessionSetPeriodFailureSwitchesPeriod(t *testing.T) {
	gw := newJournalGateway()
	s := NewSession("s1", SessionParams{GroupID: 7, Period: model.PeriodFirst}, gw, SessionOptions{})
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))
	require.Equal(t, 1, s.Attestation.Len())

	gw.mu.Lock()
	gw.loadAttestationErr = errors.ErrGatewayUnavailable
	gw.mu.Unlock()

	err := s.SetPeriod(context.Background(), model.PeriodSecond)
	assert.ErrorIs(t, err, errors.ErrGatewayUnavailable)
	assert.Equal(t, model.PeriodSecond, s.Params().Period)
	assert.Equal(t, model.PeriodSecond, s.Grid().Period)
	assert.Equal(t, 0, s.Attestation.Len())
	assert.False(t, s.Grid().Rows[0].AttestationAvailable)
}

func TestSessionSetPeriodRejectsUnknown(t *testing.T) {
	gw := newJournalGateway()
	s := NewSession("s1", SessionParams{GroupID: 7, Period: model.PeriodFirst}, gw, SessionOptions{})
	defer s.Close()
	require.NoError(t, s.Open(context.Background()))

	err := s.SetPeriod(context.Background(), model.Period("third"))
	assert.ErrorIs(t, err, errors.ErrInvalidPeriod)
	assert.Equal(t, model.PeriodFirst, s.Params().Period)
	assert.Equal(t, 1, s.Attestation.Len())
}

func TestManager(t *testing.T) {
	m := NewManager(newJournalGateway(), time.Minute, SessionOptions{})

	s, err := m.Open(context.Background(), SessionParams{GroupID: 7})
	require.NoError(t, err)

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Count())

	require.NoError(t, m.Close(s.ID()))
	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(s.ID()), errors.ErrSessionNotFound)
}

func TestManagerOpenFailureIsNotRegistered(t *testing.T) {
	gw := newJournalGateway()
	gw.loadLessonsErr = errGateway
	m := NewManager(gw, time.Minute, SessionOptions{})

	_, err := m.Open(context.Background(), SessionParams{GroupID: 7})
	assert.Error(t, err)
	assert.Equal(t, 0, m.Count())
}
