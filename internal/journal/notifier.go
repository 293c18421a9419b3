package journal

import (
	"context"
	"sync"
	"time"

	"journal-sync/internal/model"

	"github.com/google/uuid"
)

// Notifier delivers session notifications outside the process (e.g. a queue).
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Reporter surfaces user-visible events from the stores.
type Reporter interface {
	Report(ctx context.Context, n model.Notification)
}

type ReporterFunc func(ctx context.Context, n model.Notification)

func (f ReporterFunc) Report(ctx context.Context, n model.Notification) {
	f(ctx, n)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, model.Notification) {}

func orNop(r Reporter) Reporter {
	if r == nil {
		return nopReporter{}
	}
	return r
}

func failure(op model.Operation, key *model.Key, err error) model.Notification {
	n := model.Notification{
		Kind:      model.NotificationError,
		Operation: op,
		Message:   err.Error(),
	}
	if key != nil {
		lessonID, studentID := key.LessonID, key.StudentID
		n.LessonID = &lessonID
		n.StudentID = &studentID
	}
	return n
}

const inboxSize = 50

// Inbox keeps the most recent notifications of a session until dismissed.
type Inbox struct {
	mu    sync.Mutex
	items []model.Notification
}

func (b *Inbox) push(n model.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if len(b.items) > inboxSize {
		b.items = b.items[len(b.items)-inboxSize:]
	}
}

func (b *Inbox) List() []model.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Notification, len(b.items))
	copy(out, b.items)
	return out
}

// Dismiss removes a notification by id and reports whether it was present.
func (b *Inbox) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.items {
		if n.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

func stamp(sessionID string, n model.Notification) model.Notification {
	n.ID = uuid.NewString()
	n.SessionID = sessionID
	n.CreatedAt = time.Now().UTC()
	return n
}
