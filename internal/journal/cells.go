package journal

import (
	"sync"

	"journal-sync/internal/model"
)

// ChangeSource tells a listener why a cell changed.
type ChangeSource string

const (
	ChangeOptimistic ChangeSource = "optimistic"
	ChangeCommitted  ChangeSource = "committed"
	ChangeRolledBack ChangeSource = "rolled_back"
	ChangeLoaded     ChangeSource = "loaded"
)

// Change is delivered to subscribers after the store state has been updated.
// For ChangeLoaded the Key is zero and the whole store was replaced.
type Change struct {
	Key    model.Key
	Source ChangeSource
}

type Listener func(Change)

// pendingKey tracks the writes in flight for one key.
type pendingKey[V any] struct {
	// confirmed is the last value the gateway is known to hold (nil = unset).
	confirmed *V
	latest    uint64
	count     int
	tail      chan struct{}
}

type cellWrite[V any] struct {
	key   model.Key
	value *V
	gen   uint64
	turn  <-chan struct{}
	done  chan struct{}
}

// cellMap is a key → value cache with optimistic writes. Writes to one key are
// sent in the order they were applied and a failed write only reverts the cell
// when no newer write for that key is still pending.
type cellMap[V any] struct {
	mu        sync.RWMutex
	entries   map[model.Key]V
	pending   map[model.Key]*pendingKey[V]
	gen       uint64
	loadSeq   uint64
	listeners map[int]Listener
	nextID    int
}

func newCellMap[V any]() *cellMap[V] {
	return &cellMap[V]{
		entries:   make(map[model.Key]V),
		pending:   make(map[model.Key]*pendingKey[V]),
		listeners: make(map[int]Listener),
	}
}

func (m *cellMap[V]) get(key model.Key) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *cellMap[V]) snapshot() map[model.Key]V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.Key]V, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

func (m *cellMap[V]) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *cellMap[V]) subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *cellMap[V]) emit(c Change) {
	m.mu.RLock()
	ls := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.mu.RUnlock()

	for _, l := range ls {
		l(c)
	}
}

// beginLoad reserves a load sequence number; only the newest load may replace the map.
func (m *cellMap[V]) beginLoad() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadSeq++
	return m.loadSeq
}

// replace swaps in loaded entries if seq is still the newest load.
func (m *cellMap[V]) replace(seq uint64, loaded map[model.Key]V) bool {
	m.mu.Lock()
	if seq != m.loadSeq {
		m.mu.Unlock()
		return false
	}
	m.swap(loaded)
	m.mu.Unlock()

	m.emit(Change{Source: ChangeLoaded})
	return true
}

// clear empties the map and supersedes any load in progress.
func (m *cellMap[V]) clear() {
	m.mu.Lock()
	m.loadSeq++
	m.swap(make(map[model.Key]V))
	m.mu.Unlock()

	m.emit(Change{Source: ChangeLoaded})
}

// swap installs loaded as the new contents. Keys with writes in flight keep
// their optimistic value and adopt the loaded value as their rollback target.
// Callers hold m.mu.
func (m *cellMap[V]) swap(loaded map[model.Key]V) {
	for key, p := range m.pending {
		if v, ok := loaded[key]; ok {
			p.confirmed = &v
		} else {
			p.confirmed = nil
		}
		if cur, ok := m.entries[key]; ok {
			loaded[key] = cur
		} else {
			delete(loaded, key)
		}
	}
	m.entries = loaded
}

// apply writes value (nil removes) immediately and returns the handle used to
// wait for the key's turn on the wire and to settle the outcome.
func (m *cellMap[V]) apply(key model.Key, value *V) *cellWrite[V] {
	m.mu.Lock()
	var previous *V
	if cur, ok := m.entries[key]; ok {
		previous = &cur
	}

	p, ok := m.pending[key]
	if !ok {
		p = &pendingKey[V]{confirmed: previous}
		m.pending[key] = p
	}

	m.gen++
	w := &cellWrite[V]{
		key:   key,
		value: value,
		gen:   m.gen,
		turn:  p.tail,
		done:  make(chan struct{}),
	}
	p.latest = w.gen
	p.count++
	p.tail = w.done

	if value == nil {
		delete(m.entries, key)
	} else {
		m.entries[key] = *value
	}
	m.mu.Unlock()

	m.emit(Change{Key: key, Source: ChangeOptimistic})
	return w
}

// wait blocks until every earlier write to the same key has settled. It is not
// cancellable so that writes for a key always settle in turn order.
func (w *cellWrite[V]) wait() {
	if w.turn != nil {
		<-w.turn
	}
}

// settle records the remote outcome. It reports whether the cell was reverted.
func (m *cellMap[V]) settle(w *cellWrite[V], err error) bool {
	m.mu.Lock()
	p := m.pending[w.key]
	reverted := false

	// Writes settle in turn order, so every older write for the key is done.
	if err == nil {
		p.confirmed = w.value
	} else if p.latest == w.gen {
		if p.confirmed == nil {
			delete(m.entries, w.key)
		} else {
			m.entries[w.key] = *p.confirmed
		}
		reverted = true
	}

	p.count--
	if p.count == 0 {
		delete(m.pending, w.key)
	}
	close(w.done)
	m.mu.Unlock()

	switch {
	case err == nil:
		m.emit(Change{Key: w.key, Source: ChangeCommitted})
	case reverted:
		m.emit(Change{Key: w.key, Source: ChangeRolledBack})
	}
	return reverted
}
