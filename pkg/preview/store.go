// Package preview keeps a live payout preview per event and marks which
// values just changed.
//
// Each event key moves Uninitialized -> Idle on its first update. An update
// that changes a value moves it to RecentlyChanged and (re)starts a decay
// timer; when the timer fires the changed set is cleared and the key goes
// back to Idle.
package preview

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDecayWindow is how long changed markers stay set.
const DefaultDecayWindow = 300 * time.Millisecond

// Config configures a Store.
type Config struct {
	DecayWindow time.Duration // Default: 300ms

	// RejectStale drops versioned updates older than the stored version.
	RejectStale bool
}

// Observer is notified after an update is applied and after a decay clears
// the changed set. It runs on the caller's goroutine (or the timer's).
// Calls for one event ID are serialized in apply order, so an observer must
// not send updates for the same event ID back into the store.
type Observer func(eventID string, snap Snapshot, changed FieldSet)

// Recorder receives store activity. pkg/metrics provides the Prometheus one.
type Recorder interface {
	UpdateApplied(eventID string, changed int)
	UpdateIgnored(reason string)
	Decayed(eventID string)
	KeysTracked(n int)
	MessageDecoded(event string)
	DecodeFailed()
}

// Result describes the outcome of ReceiveUpdate.
type Result struct {
	Snapshot Snapshot `json:"snapshot"`
	Changed  FieldSet `json:"changed"`
	Applied  bool     `json:"applied"`
}

// Option configures a Store.
type Option func(*Store)

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithClock overrides the clock used for Snapshot.UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics attaches a recorder.
func WithMetrics(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.rec = r
		}
	}
}

type entry struct {
	// notifyMu is held across apply and notify so observers see one key's
	// events in the order they were applied. Taken before mu.
	notifyMu sync.Mutex

	mu      sync.Mutex
	ready   bool
	snap    Snapshot
	seen    FieldSet
	changed FieldSet
	timer   *time.Timer
	gen     uint64
}

// Store holds one preview cell per event ID. It is safe for concurrent use.
// Updates for different keys never contend beyond the map lookup.
type Store struct {
	cfg       Config
	now       func() time.Time
	observers []Observer
	rec       Recorder

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

// NewStore creates a store.
func NewStore(cfg Config, opts ...Option) *Store {
	if cfg.DecayWindow <= 0 {
		cfg.DecayWindow = DefaultDecayWindow
	}
	s := &Store{
		cfg:     cfg,
		now:     time.Now,
		rec:     nopRecorder{},
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// ReceiveUpdate merges the present fields of u over the stored snapshot for
// eventID. Fields whose value differs exactly from the previous one form the
// changed set. The first update for a key only sets the baseline.
//
// Updates with an empty event ID or no usable field are ignored and leave
// the stored state untouched.
func (s *Store) ReceiveUpdate(eventID string, u Update) Result {
	if eventID == "" || u.Empty() {
		s.rec.UpdateIgnored("malformed")
		log.Debug().Str("event_id", eventID).Msg("preview: ignoring malformed update")
		snap, _ := s.Snapshot(eventID)
		return Result{Snapshot: snap, Changed: FieldSet{}}
	}

	e, ok := s.entry(eventID)
	if !ok {
		s.rec.UpdateIgnored("closed")
		return Result{Changed: FieldSet{}}
	}

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if s.cfg.RejectStale && e.ready && u.Version != 0 && u.Version < e.snap.Version {
		snap := e.snap
		e.mu.Unlock()
		s.rec.UpdateIgnored("stale")
		log.Debug().
			Str("event_id", eventID).
			Uint64("version", u.Version).
			Uint64("stored_version", snap.Version).
			Msg("preview: dropping stale update")
		return Result{Snapshot: snap, Changed: FieldSet{}}
	}

	if e.seen == nil {
		e.seen = FieldSet{}
	}
	next, changed := merge(e.snap, e.seen, u, e.ready)
	next.UpdatedAt = s.now()
	e.snap = next
	e.ready = true

	if changed.Len() > 0 {
		e.changed = changed
		e.gen++
		gen := e.gen
		if e.timer != nil {
			e.timer.Stop()
		}
		e.timer = time.AfterFunc(s.cfg.DecayWindow, func() {
			s.decay(eventID, e, gen)
		})
	}
	e.mu.Unlock()

	s.rec.UpdateApplied(eventID, changed.Len())
	if changed.Len() > 0 {
		log.Debug().
			Str("event_id", eventID).
			Strs("changed", fieldNames(changed)).
			Msg("preview: snapshot changed")
	}
	s.notify(eventID, next, changed)

	return Result{Snapshot: next, Changed: changed.Clone(), Applied: true}
}

// decay clears the changed set unless a newer update restarted the timer.
func (s *Store) decay(eventID string, e *entry, gen uint64) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if e.gen != gen || e.changed.Len() == 0 {
		e.mu.Unlock()
		return
	}
	e.changed = nil
	e.timer = nil
	snap := e.snap
	e.mu.Unlock()

	s.rec.Decayed(eventID)
	s.notify(eventID, snap, FieldSet{})
}

// Snapshot returns the latest snapshot for eventID.
func (s *Store) Snapshot(eventID string) (Snapshot, bool) {
	e := s.lookup(eventID)
	if e == nil {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap, e.ready
}

// ChangedFields returns a copy of the fields marked as recently changed.
// It is empty for unknown keys and after the decay window has passed.
func (s *Store) ChangedFields(eventID string) FieldSet {
	e := s.lookup(eventID)
	if e == nil {
		return FieldSet{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.changed.Clone()
}

// State returns the lifecycle state of eventID.
func (s *Store) State(eventID string) State {
	e := s.lookup(eventID)
	if e == nil {
		return StateUninitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !e.ready:
		return StateUninitialized
	case e.changed.Len() > 0:
		return StateRecentlyChanged
	default:
		return StateIdle
	}
}

// Keys returns every tracked event ID, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Forget drops eventID and stops its timer.
func (s *Store) Forget(eventID string) {
	s.mu.Lock()
	e, ok := s.entries[eventID]
	delete(s.entries, eventID)
	n := len(s.entries)
	s.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()
	s.rec.KeysTracked(n)
}

// Close stops all pending decay timers. Later updates are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		e.gen++
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.mu.Unlock()
	}
}

func (s *Store) lookup(eventID string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[eventID]
}

// entry returns the cell for eventID, creating it on first use.
func (s *Store) entry(eventID string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[eventID]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, false
	}
	if ok {
		return e, true
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, false
	}
	e, ok = s.entries[eventID]
	if !ok {
		e = &entry{}
		s.entries[eventID] = e
	}
	n := len(s.entries)
	s.mu.Unlock()

	if !ok {
		s.rec.KeysTracked(n)
	}
	return e, true
}

func (s *Store) notify(eventID string, snap Snapshot, changed FieldSet) {
	for _, o := range s.observers {
		o(eventID, snap, changed.Clone())
	}
}

func fieldNames(fs FieldSet) []string {
	out := make([]string, 0, fs.Len())
	for _, f := range fs.Slice() {
		out = append(out, string(f))
	}
	return out
}

type nopRecorder struct{}

func (nopRecorder) UpdateApplied(string, int) {}
func (nopRecorder) UpdateIgnored(string)      {}
func (nopRecorder) Decayed(string)            {}
func (nopRecorder) KeysTracked(int)           {}
func (nopRecorder) MessageDecoded(string)     {}
func (nopRecorder) DecodeFailed()             {}
