package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"journal-sync/internal/logger"
	"journal-sync/internal/model"
	"journal-sync/pkg/errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type LessonLoader interface {
	LoadLessons(ctx context.Context, q model.LessonQuery) ([]model.Lesson, error)
	LoadStudents(ctx context.Context, groupID int64) ([]model.Student, error)
}

// Gateway is everything a session needs from the remote service.
type Gateway interface {
	AttendanceGateway
	GradeGateway
	StatsLoader
	AttestationLoader
	LessonLoader
}

type SessionParams struct {
	GroupID   int64        `json:"group_id"`
	SubjectID *int64       `json:"subject_id,omitempty"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Period    model.Period `json:"period"`
}

type SessionOptions struct {
	StatsDebounce  time.Duration
	RefreshTimeout time.Duration
	Notifier       Notifier
	Archiver       Archiver
}

// Session is one journal view: the stores, the debounced stats refresh and the
// attestation overlay for a group and date range.
type Session struct {
	id       string
	params   SessionParams
	gateway  Gateway
	notifier Notifier
	inbox    Inbox
	log      zerolog.Logger

	Attendance  *AttendanceStore
	Grades      *GradeStore
	Stats       *StatsService
	Attestation *AttestationOverlay
	debouncer   *Debouncer

	mu       sync.RWMutex
	lessons  []model.Lesson
	students []model.Student
	closed   bool
	unsub    []func()
}

func NewSession(id string, params SessionParams, gateway Gateway, opts SessionOptions) *Session {
	if params.Period == "" {
		params.Period = model.PeriodAll
	}
	if opts.StatsDebounce <= 0 {
		opts.StatsDebounce = 300 * time.Millisecond
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}

	s := &Session{
		id:       id,
		params:   params,
		gateway:  gateway,
		notifier: opts.Notifier,
		log:      logger.For("journal_session").With().Str("session_id", id).Int64("group_id", params.GroupID).Logger(),
	}

	s.Stats = NewStatsService(gateway, model.StatsQuery{
		GroupID:   params.GroupID,
		StartDate: params.StartDate,
		EndDate:   params.EndDate,
		SubjectID: params.SubjectID,
	}, s)

	s.debouncer = NewDebouncer(opts.StatsDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), opts.RefreshTimeout)
		defer cancel()
		_ = s.Stats.Refresh(ctx)
	})

	s.Attendance = NewAttendanceStore(gateway, s.debouncer, s)
	s.Grades = NewGradeStore(gateway, s.Attendance, s.debouncer, s)
	s.Attestation = NewAttestationOverlay(gateway, opts.Archiver, s)

	s.unsub = append(s.unsub,
		s.Attendance.Subscribe(s.committed(model.OpUpdateAttendance)),
		s.Grades.Subscribe(s.committed(model.OpUpdateGrade)),
	)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Params() SessionParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

func (s *Session) Notifications() *Inbox {
	return &s.inbox
}

// Report implements Reporter: errors land in the inbox, everything goes to the notifier.
func (s *Session) Report(ctx context.Context, n model.Notification) {
	n = stamp(s.id, n)
	if n.Kind == model.NotificationError {
		s.inbox.push(n)
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("operation", string(n.Operation)).Msg("Failed to publish notification")
	}
}

func (s *Session) committed(op model.Operation) Listener {
	return func(c Change) {
		if c.Source != ChangeCommitted {
			return
		}
		key := c.Key
		n := model.Notification{Kind: model.NotificationInfo, Operation: op, Message: "saved"}
		n.LessonID, n.StudentID = &key.LessonID, &key.StudentID
		s.Report(context.Background(), n)
	}
}

// Open loads lessons and students, then attendance, grades, stats and the
// attestation overlay. Only a failure to load lessons or students fails Open;
// the other loads are surfaced as notifications.
func (s *Session) Open(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	var lessons []model.Lesson
	var students []model.Student
	g.Go(func() error {
		var err error
		lessons, err = s.gateway.LoadLessons(gctx, model.LessonQuery{
			GroupID:   s.params.GroupID,
			SubjectID: s.params.SubjectID,
			StartDate: s.params.StartDate,
			EndDate:   s.params.EndDate,
		})
		return err
	})
	g.Go(func() error {
		var err error
		students, err = s.gateway.LoadStudents(gctx, s.params.GroupID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.Report(ctx, failure(model.OpLoadLessons, nil, err))
		return fmt.Errorf("failed to open journal: %w", err)
	}

	s.mu.Lock()
	s.lessons = lessons
	s.students = students
	s.mu.Unlock()

	s.log.Info().Int("lessons", len(lessons)).Int("students", len(students)).Msg("Journal session opened")

	s.Reload(ctx)
	return nil
}

// Reload refetches attendance, grades, stats and attestation concurrently.
func (s *Session) Reload(ctx context.Context) {
	lessonIDs := s.LessonIDs()
	params := s.Params()

	var g errgroup.Group
	g.Go(func() error { return s.Attendance.Load(ctx, params.GroupID, lessonIDs) })
	g.Go(func() error { return s.Grades.Load(ctx, lessonIDs) })
	g.Go(func() error { return s.Stats.Refresh(ctx) })
	g.Go(func() error { return s.Attestation.Load(ctx, params.GroupID, params.Period) })
	if err := g.Wait(); err != nil {
		s.log.Warn().Err(err).Msg("Journal reload finished with errors")
	}
}

// SetPeriod switches the attestation overlay; PeriodAll clears it. A failed
// load still switches the session to period with an empty overlay.
func (s *Session) SetPeriod(ctx context.Context, period model.Period) error {
	switch period {
	case model.PeriodAll, model.PeriodFirst, model.PeriodSecond:
	default:
		return fmt.Errorf("%w: %q", errors.ErrInvalidPeriod, period)
	}

	s.mu.Lock()
	s.params.Period = period
	groupID := s.params.GroupID
	s.mu.Unlock()

	return s.Attestation.Load(ctx, groupID, period)
}

func (s *Session) LessonIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, len(s.lessons))
	for i, l := range s.lessons {
		ids[i] = l.ID
	}
	return ids
}

// Lesson finds a lesson of this view by id.
func (s *Session) Lesson(id int64) (model.Lesson, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.lessons {
		if l.ID == id {
			return l, true
		}
	}
	return model.Lesson{}, false
}

func (s *Session) Grid() Grid {
	s.mu.RLock()
	lessons, students := s.lessons, s.students
	s.mu.RUnlock()

	return BuildGrid(lessons, students, s.Attendance.Snapshot(), s.Grades.Snapshot(), s.Attestation)
}

// Close cancels the pending stats refresh and detaches listeners. Writes still
// in flight settle against the stores, which are no longer observed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	s.debouncer.Stop()
	for _, fn := range unsub {
		fn()
	}
	s.log.Info().Msg("Journal session closed")
}
