package app

import (
	"context"
	"html/template"
	"log"
	"sync"
	"sync/atomic"
)

// State of the synchronizer model
type State int

const (
	StateEmpty State = iota
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of everything the page shows
type Snapshot struct {
	State       State
	Fields      FieldGrid
	SelectedDay Weekday
	FullView    template.HTML
	DayView     template.HTML
	FormVisible bool
}

// Synchronizer keeps the editable fields and both rendered views consistent
// with the timetable held by the store. Every transition computes the new
// fields and views first and swaps them in together under mu.
type Synchronizer struct {
	store    *Store
	defaults DefaultSource
	remote   *RemoteClient
	pushing  atomic.Bool

	mu          sync.Mutex
	state       State
	fields      FieldGrid
	selected    Weekday
	fullView    template.HTML
	dayView     template.HTML
	formVisible bool
}

func NewSynchronizer(store *Store, defaults DefaultSource, remote *RemoteClient) *Synchronizer {
	return &Synchronizer{
		store:       store,
		defaults:    defaults,
		remote:      remote,
		selected:    Monday,
		formVisible: true,
	}
}

type views struct {
	fields FieldGrid
	full   template.HTML
	day    template.HTML
}

func buildViews(t Timetable, day Weekday) (views, error) {
	full, err := RenderFull(t)
	if err != nil {
		return views{}, err
	}
	dayView, err := RenderDay(day, t)
	if err != nil {
		return views{}, err
	}
	return views{fields: ApplyToFields(t), full: full, day: dayView}, nil
}

// applyLocked swaps in freshly built views (caller must hold mu)
func (s *Synchronizer) applyLocked(v views) {
	s.fields = v.fields
	s.fullView = v.full
	s.dayView = v.day
	s.state = StateLoaded
}

// Save captures the grid, persists it and refreshes both views
func (s *Synchronizer) Save(ctx context.Context, grid FieldGrid) (Timetable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.store.Capture(grid)
	v, err := buildViews(t, s.selected)
	if err != nil {
		return nil, err
	}
	if err := s.store.Persist(ctx, t); err != nil {
		return nil, err
	}

	s.applyLocked(v)
	s.formVisible = false
	return t, nil
}

// LoadFromStorage applies the stored timetable, if there is one
func (s *Synchronizer) LoadFromStorage(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok, err := s.store.Retrieve(ctx)
	if err != nil || !ok {
		return false, err
	}
	v, err := buildViews(t, s.selected)
	if err != nil {
		return false, err
	}

	s.applyLocked(v)
	return true, nil
}

// LoadDefault loads the bundled default into an empty synchronizer.
// It reports whether anything was loaded and never fails.
func (s *Synchronizer) LoadDefault(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEmpty {
		return false
	}
	t, ok := s.store.LoadDefaultIfAbsent(ctx, s.defaults)
	if !ok {
		return false
	}
	v, err := buildViews(t, s.selected)
	if err != nil {
		log.Printf("Default timetable not rendered: %v", err)
		return false
	}

	s.applyLocked(v)
	s.formVisible = false
	return true
}

// LoadDefaultAsync runs LoadDefault in the background
func (s *Synchronizer) LoadDefaultAsync(ctx context.Context) <-chan Result[bool] {
	return Go(func() (bool, error) {
		return s.LoadDefault(ctx), nil
	})
}

// LoadFromFile replaces the timetable with uploaded content. Invalid content
// leaves everything untouched.
func (s *Synchronizer) LoadFromFile(ctx context.Context, data []byte) (Timetable, error) {
	t, err := Deserialize(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := buildViews(t, s.selected)
	if err != nil {
		return nil, err
	}
	if err := s.store.Persist(ctx, t); err != nil {
		return nil, err
	}

	s.applyLocked(v)
	s.formVisible = false
	return t, nil
}

// SelectDay changes the selected day and re-renders the day view from the
// persisted timetable
func (s *Synchronizer) SelectDay(ctx context.Context, day Weekday) error {
	if _, err := ParseWeekday(string(day)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok, err := s.store.Retrieve(ctx)
	if err != nil {
		return err
	}
	if !ok {
		t = Timetable{}
	}
	dayView, err := RenderDay(day, t)
	if err != nil {
		return err
	}

	s.selected = day
	s.dayView = dayView
	return nil
}

// ShowForm unfolds the input form
func (s *Synchronizer) ShowForm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formVisible = true
}

// Capture returns the timetable currently held by the fields
func (s *Synchronizer) Capture() Timetable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Capture(s.fields)
}

func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:       s.state,
		Fields:      s.fields,
		SelectedDay: s.selected,
		FullView:    s.fullView,
		DayView:     s.dayView,
		FormVisible: s.formVisible,
	}
}

// PushRemote sends t to the remote endpoint and waits for the answer. Only
// one push runs at a time; local state is never changed.
func (s *Synchronizer) PushRemote(ctx context.Context, t Timetable) (Ack, error) {
	if !s.remote.Configured() {
		return Ack{}, ErrRemoteNotConfigured
	}
	if !s.pushing.CompareAndSwap(false, true) {
		return Ack{}, ErrBusy
	}
	defer s.pushing.Store(false)

	return s.remote.Push(ctx, t)
}
