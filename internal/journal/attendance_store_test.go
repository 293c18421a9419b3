package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"journal-sync/internal/model"
	"journal-sync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAttendance(gw *fakeGateway) (*AttendanceStore, *countingScheduler, *recordingReporter) {
	sched := &countingScheduler{}
	rep := &recordingReporter{}
	return NewAttendanceStore(gw, sched, rep), sched, rep
}

func TestAttendanceLoad(t *testing.T) {
	gw := &fakeGateway{attendance: []model.AttendanceRecord{
		{LessonID: 1, StudentID: 10, Status: model.AttendanceStatusPresent},
		{LessonID: 1, StudentID: 11, Status: "BOGUS"},
	}}
	store, _, _ := newAttendance(gw)

	require.NoError(t, store.Load(context.Background(), 5, []int64{1}))

	status, ok := store.Get(1, 10)
	assert.True(t, ok)
	assert.Equal(t, model.AttendanceStatusPresent, status)
	_, ok = store.Get(1, 11)
	assert.False(t, ok, "unknown statuses are skipped")
}

func TestAttendanceLoadEmptyClearsWithoutNetwork(t *testing.T) {
	gw := &fakeGateway{attendance: []model.AttendanceRecord{{LessonID: 1, StudentID: 10, Status: model.AttendanceStatusLate}}}
	store, _, _ := newAttendance(gw)
	require.NoError(t, store.Load(context.Background(), 5, []int64{1}))

	require.NoError(t, store.Load(context.Background(), 5, nil))

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, gw.loadAttendanceCalls)
}

func TestAttendanceLoadFailureKeepsPrevious(t *testing.T) {
	gw := &fakeGateway{attendance: []model.AttendanceRecord{{LessonID: 1, StudentID: 10, Status: model.AttendanceStatusLate}}}
	store, _, rep := newAttendance(gw)
	require.NoError(t, store.Load(context.Background(), 5, []int64{1}))

	gw.loadAttendanceErr = errGateway
	err := store.Load(context.Background(), 5, []int64{1, 2})

	assert.ErrorIs(t, err, errGateway)
	status, ok := store.Get(1, 10)
	assert.True(t, ok)
	assert.Equal(t, model.AttendanceStatusLate, status)
	require.Len(t, rep.all(), 1)
	assert.Equal(t, model.OpLoadAttendance, rep.all()[0].Operation)
}

func TestAttendanceOptimisticVisibility(t *testing.T) {
	release := make(chan struct{})
	called := make(chan struct{})
	gw := &fakeGateway{onWrite: func(string, model.Key) error {
		close(called)
		<-release
		return nil
	}}
	store, sched, _ := newAttendance(gw)

	done := make(chan error, 1)
	go func() { done <- store.Update(context.Background(), 1, 10, statusPtr(model.AttendanceStatusLate)) }()

	<-called
	status, ok := store.Get(1, 10)
	assert.True(t, ok)
	assert.Equal(t, model.AttendanceStatusLate, status, "value must be visible before the gateway answers")
	assert.Equal(t, 0, sched.count())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, sched.count())
}

func TestAttendanceRollback(t *testing.T) {
	tests := []struct {
		name    string
		initial *model.AttendanceStatus
		update  *model.AttendanceStatus
	}{
		{name: "set over existing", initial: statusPtr(model.AttendanceStatusLate), update: statusPtr(model.AttendanceStatusAbsent)},
		{name: "set over unset", update: statusPtr(model.AttendanceStatusPresent)},
		{name: "remove existing", initial: statusPtr(model.AttendanceStatusExcused)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			if tt.initial != nil {
				gw.attendance = []model.AttendanceRecord{{LessonID: 1, StudentID: 10, Status: *tt.initial}}
			}
			store, sched, rep := newAttendance(gw)
			require.NoError(t, store.Load(context.Background(), 5, []int64{1}))

			gw.onWrite = func(string, model.Key) error { return errGateway }
			err := store.Update(context.Background(), 1, 10, tt.update)

			assert.ErrorIs(t, err, errGateway)
			status, ok := store.Get(1, 10)
			if tt.initial == nil {
				assert.False(t, ok)
			} else {
				assert.True(t, ok)
				assert.Equal(t, *tt.initial, status)
			}
			assert.Equal(t, 0, sched.count(), "failed writes do not refresh stats")
			require.Len(t, rep.all(), 1)
			assert.Equal(t, model.NotificationError, rep.all()[0].Kind)
		})
	}
}

func TestAttendanceNullRemoves(t *testing.T) {
	gw := &fakeGateway{attendance: []model.AttendanceRecord{{LessonID: 1, StudentID: 10, Status: model.AttendanceStatusPresent}}}
	store, _, _ := newAttendance(gw)
	require.NoError(t, store.Load(context.Background(), 5, []int64{1}))

	require.NoError(t, store.Update(context.Background(), 1, 10, nil))
	_, ok := store.Get(1, 10)
	assert.False(t, ok)

	require.NoError(t, store.Update(context.Background(), 1, 11, statusPtr(model.AttendanceStatusAbsent)))
	status, ok := store.Get(1, 11)
	assert.True(t, ok)
	assert.Equal(t, model.AttendanceStatusAbsent, status)

	assert.Equal(t, []string{"delete_attendance", "upsert_attendance"}, gw.writeLog())
}

func TestAttendanceRejectsUnknownStatus(t *testing.T) {
	store, _, _ := newAttendance(&fakeGateway{})
	err := store.Update(context.Background(), 1, 1, statusPtr("SLEEPING"))
	assert.ErrorIs(t, err, errors.ErrInvalidStatus)
	assert.Equal(t, 0, store.Len())
}

func TestAttendanceCycle(t *testing.T) {
	store, _, _ := newAttendance(&fakeGateway{})
	want := []model.AttendanceStatus{
		model.AttendanceStatusPresent,
		model.AttendanceStatusLate,
		model.AttendanceStatusExcused,
		model.AttendanceStatusAbsent,
		model.AttendanceStatusPresent,
	}
	for _, w := range want {
		got, err := store.Cycle(context.Background(), 1, 1)
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
}

func TestAttendanceSameKeyWritesAreOrdered(t *testing.T) {
	firstCalled := make(chan struct{})
	releaseFirst := make(chan struct{})
	var mu sync.Mutex
	var order []model.AttendanceStatus

	gw := &fakeGateway{}
	store, _, _ := newAttendance(gw)
	gw.onWrite = func(op string, key model.Key) error {
		gw.mu.Lock()
		req := gw.upserts[len(gw.upserts)-1]
		gw.mu.Unlock()

		mu.Lock()
		order = append(order, req.Records[0].Status)
		first := len(order) == 1
		mu.Unlock()

		if first {
			close(firstCalled)
			<-releaseFirst
			return errGateway
		}
		return nil
	}

	firstDone := make(chan error, 1)
	go func() { firstDone <- store.Update(context.Background(), 1, 1, statusPtr(model.AttendanceStatusLate)) }()
	<-firstCalled

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- store.Update(context.Background(), 1, 1, statusPtr(model.AttendanceStatusExcused))
	}()

	// The newer value is visible while the older write is still on the wire.
	require.Eventually(t, func() bool {
		st, _ := store.Get(1, 1)
		return st == model.AttendanceStatusExcused
	}, time.Second, time.Millisecond)

	close(releaseFirst)
	assert.ErrorIs(t, <-firstDone, errGateway)
	require.NoError(t, <-secondDone)

	// The failed older write must not roll back over the newer one.
	status, ok := store.Get(1, 1)
	assert.True(t, ok)
	assert.Equal(t, model.AttendanceStatusExcused, status)
	assert.Equal(t, []model.AttendanceStatus{model.AttendanceStatusLate, model.AttendanceStatusExcused}, order)
}

func TestAttendanceSubscribe(t *testing.T) {
	store, _, _ := newAttendance(&fakeGateway{})
	var changes []ChangeSource
	cancel := store.Subscribe(func(c Change) { changes = append(changes, c.Source) })

	require.NoError(t, store.Update(context.Background(), 1, 1, statusPtr(model.AttendanceStatusLate)))
	cancel()
	require.NoError(t, store.Update(context.Background(), 1, 1, nil))

	assert.Equal(t, []ChangeSource{ChangeOptimistic, ChangeCommitted}, changes)
}

func TestAttendanceQueuedWriteIgnoresCallerCancel(t *testing.T) {
	firstCalled := make(chan struct{})
	releaseFirst := make(chan struct{})
	var calls int32
	gw := &fakeGateway{}
	gw.onWrite = func(string, model.Key) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(firstCalled)
			<-releaseFirst
		}
		return nil
	}
	store, _, rep := newAttendance(gw)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- store.Update(context.Background(), 1, 1, statusPtr(model.AttendanceStatusPresent))
	}()
	<-firstCalled

	ctx, cancel := context.WithCancel(context.Background())
	secondDone := make(chan error, 1)
	go func() { secondDone <- store.Update(ctx, 1, 1, statusPtr(model.AttendanceStatusLate)) }()
	require.Eventually(t, func() bool {
		st, _ := store.Get(1, 1)
		return st == model.AttendanceStatusLate
	}, time.Second, time.Millisecond)

	cancel()
	close(releaseFirst)

	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	status, ok := store.Get(1, 1)
	assert.True(t, ok)
	assert.Equal(t, model.AttendanceStatusLate, status, "local cell matches the last write the gateway accepted")
	require.Len(t, gw.upserts, 2)
	assert.Equal(t, model.AttendanceStatusLate, gw.upserts[1].Records[0].Status)
	assert.Empty(t, rep.all())
}

func TestAttendanceWriteOutlivesCallerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &fakeGateway{onWrite: func(string, model.Key) error {
		// The caller disconnects while the request is on the wire.
		cancel()
		return nil
	}}
	store, sched, _ := newAttendance(gw)

	require.NoError(t, store.Update(ctx, 1, 1, statusPtr(model.AttendanceStatusExcused)))

	status, ok := store.Get(1, 1)
	assert.True(t, ok)
	assert.Equal(t, model.AttendanceStatusExcused, status)
	assert.Equal(t, []error{nil}, gw.writeContextErrors())
	assert.Equal(t, 1, sched.count())
}

func TestAttendanceLoadDuringPendingWrite(t *testing.T) {
	tests := []struct {
		name     string
		reload   func(store *AttendanceStore, gw *fakeGateway) error
		writeErr error
		want     *model.AttendanceStatus
	}{
		{
			name: "failed write reverts to reloaded value",
			reload: func(store *AttendanceStore, gw *fakeGateway) error {
				gw.mu.Lock()
				gw.attendance = []model.AttendanceRecord{{LessonID: 1, StudentID: 10, Status: model.AttendanceStatusExcused}}
				gw.mu.Unlock()
				return store.Load(context.Background(), 5, []int64{1})
			},
			writeErr: errGateway,
			want:     statusPtr(model.AttendanceStatusExcused),
		},
		{
			name: "failed write after clear reverts to unset",
			reload: func(store *AttendanceStore, _ *fakeGateway) error {
				return store.Load(context.Background(), 5, nil)
			},
			writeErr: errGateway,
		},
		{
			name: "committed write survives clear",
			reload: func(store *AttendanceStore, _ *fakeGateway) error {
				return store.Load(context.Background(), 5, nil)
			},
			want: statusPtr(model.AttendanceStatusAbsent),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{attendance: []model.AttendanceRecord{{LessonID: 1, StudentID: 10, Status: model.AttendanceStatusLate}}}
			store, _, _ := newAttendance(gw)
			require.NoError(t, store.Load(context.Background(), 5, []int64{1}))

			called := make(chan struct{})
			release := make(chan struct{})
			gw.onWrite = func(string, model.Key) error {
				close(called)
				<-release
				return tt.writeErr
			}

			done := make(chan error, 1)
			go func() { done <- store.Update(context.Background(), 1, 10, statusPtr(model.AttendanceStatusAbsent)) }()
			<-called

			require.NoError(t, tt.reload(store, gw))
			status, ok := store.Get(1, 10)
			assert.True(t, ok, "pending optimistic value is kept across loads")
			assert.Equal(t, model.AttendanceStatusAbsent, status)

			close(release)
			assert.ErrorIs(t, <-done, tt.writeErr)

			status, ok = store.Get(1, 10)
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, *tt.want, status)
		})
	}
}
