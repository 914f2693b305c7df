package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"testing/fstest"
)

func newTestSynchronizer(defaults DefaultSource, remote *RemoteClient) (*Synchronizer, *Store, *MemoryKV) {
	kv := NewMemoryKV()
	store := NewStore(kv, "")
	return NewSynchronizer(store, defaults, remote), store, kv
}

// assertConsistent checks that fields and both views derive from the same timetable
func assertConsistent(t *testing.T, s *Synchronizer, want Timetable) {
	t.Helper()

	snap := s.Snapshot()
	if snap.State != StateLoaded {
		t.Fatalf("Expected state loaded, got %s", snap.State)
	}

	captured := s.store.Capture(snap.Fields)
	if !captured.Equal(s.store.Capture(ApplyToFields(want))) {
		t.Errorf("Fields %v do not match timetable %v", captured, want)
	}

	full, _ := RenderFull(captured)
	if snap.FullView != full {
		t.Errorf("Full view lags the fields:\n got %s\nwant %s", snap.FullView, full)
	}
	day, _ := RenderDay(snap.SelectedDay, captured)
	if snap.DayView != day {
		t.Errorf("Day view lags the fields:\n got %s\nwant %s", snap.DayView, day)
	}
}

func TestSynchronizerInitialState(t *testing.T) {
	s, _, _ := newTestSynchronizer(nil, nil)
	snap := s.Snapshot()

	if snap.State != StateEmpty {
		t.Errorf("Expected empty state, got %s", snap.State)
	}
	if snap.SelectedDay != Monday {
		t.Errorf("Expected Monday selected, got %s", snap.SelectedDay)
	}
	if !snap.FormVisible {
		t.Error("Form should be visible initially")
	}
	if snap.FullView != "" || snap.DayView != "" {
		t.Error("No views should be rendered before a timetable is loaded")
	}
}

func TestSynchronizerSave(t *testing.T) {
	ctx := context.Background()
	s, store, kv := newTestSynchronizer(nil, nil)

	var grid FieldGrid
	grid.SetCell(Monday, 0, "Math")
	grid.SetCell(Monday, 2, "Chemistry")

	saved, err := s.Save(ctx, grid)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	stored, ok, err := store.Retrieve(ctx)
	if err != nil || !ok {
		t.Fatalf("Retrieve() = ok %v, err %v", ok, err)
	}
	if stored.Subject(Monday, 2) != "Chemistry" || stored.Subject(Monday, 0) != "Math" {
		t.Errorf("Stored timetable mismatch: %v", stored)
	}
	if !stored.Equal(saved) {
		t.Errorf("Save() returned %v, stored %v", saved, stored)
	}
	assertConsistent(t, s, stored)

	if s.Snapshot().FormVisible {
		t.Error("Save should fold the input form")
	}

	// Saving the same grid again stores the same value
	first, _, _ := kv.Get(ctx, DefaultStorageKey)
	if _, err := s.Save(ctx, grid); err != nil {
		t.Fatalf("Second Save() failed: %v", err)
	}
	second, _, _ := kv.Get(ctx, DefaultStorageKey)
	if first != second {
		t.Errorf("Save is not idempotent: %s != %s", first, second)
	}
}

func TestSynchronizerSavePersistFailure(t *testing.T) {
	store := NewStore(failingKV{NewMemoryKV()}, "")
	s := NewSynchronizer(store, nil, nil)

	var grid FieldGrid
	grid.SetCell(Monday, 0, "Math")
	if _, err := s.Save(context.Background(), grid); err == nil {
		t.Fatal("Save() should fail when storage rejects the write")
	}
	if snap := s.Snapshot(); snap.State != StateEmpty || snap.FullView != "" {
		t.Error("Failed save must not refresh any view")
	}
}

func TestSynchronizerLoadFromStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("Absent", func(t *testing.T) {
		s, _, _ := newTestSynchronizer(nil, nil)
		ok, err := s.LoadFromStorage(ctx)
		if ok || err != nil {
			t.Errorf("LoadFromStorage() = %v, %v; want false, nil", ok, err)
		}
		if s.Snapshot().State != StateEmpty {
			t.Error("State should stay empty")
		}
	})

	t.Run("Present", func(t *testing.T) {
		s, store, _ := newTestSynchronizer(nil, nil)
		want := sampleTimetable()
		_ = store.Persist(ctx, want)

		ok, err := s.LoadFromStorage(ctx)
		if !ok || err != nil {
			t.Fatalf("LoadFromStorage() = %v, %v; want true, nil", ok, err)
		}
		assertConsistent(t, s, want)
	})

	t.Run("Corrupt", func(t *testing.T) {
		s, _, kv := newTestSynchronizer(nil, nil)
		_ = kv.Set(ctx, DefaultStorageKey, "{not json")

		ok, err := s.LoadFromStorage(ctx)
		if ok || !errors.Is(err, ErrDeserialization) {
			t.Errorf("LoadFromStorage() = %v, %v; want false, ErrDeserialization", ok, err)
		}
		if s.Snapshot().State != StateEmpty {
			t.Error("Corrupt storage should leave the synchronizer empty")
		}
	})
}

func TestSynchronizerLoadDefault(t *testing.T) {
	ctx := context.Background()
	src := FSDefaultSource{
		FS:   fstest.MapFS{DefaultTimetableFile: {Data: []byte(`{"Monday": ["Math","","","","","","",""]}`)}},
		Name: DefaultTimetableFile,
	}

	t.Run("Loads into empty", func(t *testing.T) {
		s, store, _ := newTestSynchronizer(src, nil)
		if !s.LoadDefault(ctx) {
			t.Fatal("Expected default to load")
		}

		stored, _, _ := store.Retrieve(ctx)
		assertConsistent(t, s, stored)

		want, _ := RenderDay(Monday, Timetable{"Monday": {"Math"}})
		if s.Snapshot().DayView != want {
			t.Errorf("Day view should show Math in period 1 only, got %s", s.Snapshot().DayView)
		}
		if s.Snapshot().FormVisible {
			t.Error("Loading the default should fold the input form")
		}
	})

	t.Run("Unreachable stays empty", func(t *testing.T) {
		s, store, _ := newTestSynchronizer(failingSource{}, nil)
		if s.LoadDefault(ctx) {
			t.Error("LoadDefault() should report nothing loaded")
		}
		snap := s.Snapshot()
		if snap.State != StateEmpty || snap.FullView != "" || snap.DayView != "" || snap.Fields != (FieldGrid{}) {
			t.Error("Unreachable default must leave everything empty")
		}
		if _, ok, _ := store.Retrieve(ctx); ok {
			t.Error("Nothing should be persisted")
		}
	})

	t.Run("Only from empty", func(t *testing.T) {
		s, store, _ := newTestSynchronizer(src, nil)
		var grid FieldGrid
		grid.SetCell(Friday, 0, "Art")
		saved, _ := s.Save(ctx, grid)

		if s.LoadDefault(ctx) {
			t.Error("LoadDefault() should not run once loaded")
		}
		stored, _, _ := store.Retrieve(ctx)
		if !stored.Equal(saved) {
			t.Error("Stored timetable should be unchanged")
		}
	})

	t.Run("Async", func(t *testing.T) {
		s, _, _ := newTestSynchronizer(src, nil)
		res := <-s.LoadDefaultAsync(ctx)
		if !res.Value || res.Err != nil {
			t.Errorf("LoadDefaultAsync() = %v, %v", res.Value, res.Err)
		}
		if s.Snapshot().State != StateLoaded {
			t.Error("Expected loaded state after async default load")
		}
	})
}

func TestSynchronizerLoadFromFile(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestSynchronizer(nil, nil)

	var grid FieldGrid
	grid.SetCell(Tuesday, 3, "Geography")
	prior, _ := s.Save(ctx, grid)
	s.ShowForm()
	before := s.Snapshot()

	if _, err := s.LoadFromFile(ctx, []byte("{not json")); !errors.Is(err, ErrDeserialization) {
		t.Fatalf("LoadFromFile() error = %v, want ErrDeserialization", err)
	}
	if after := s.Snapshot(); after != before {
		t.Error("Invalid file must leave fields and views untouched")
	}
	stored, _, _ := store.Retrieve(ctx)
	if !stored.Equal(prior) {
		t.Error("Invalid file must not touch storage")
	}

	uploaded := Timetable{"Wednesday": {"", "Biology"}}
	if _, err := s.LoadFromFile(ctx, []byte(`{"Wednesday": ["", "Biology"]}`)); err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	stored, _, _ = store.Retrieve(ctx)
	if !stored.Equal(uploaded) {
		t.Errorf("Stored %v, want %v", stored, uploaded)
	}
	assertConsistent(t, s, uploaded)
	if s.Snapshot().Fields.Cell(Tuesday, 3) != "" {
		t.Error("Upload replaces the whole model")
	}
	if s.Snapshot().FormVisible {
		t.Error("Upload should fold the input form")
	}
}

func TestSynchronizerSelectDay(t *testing.T) {
	ctx := context.Background()
	s, store, kv := newTestSynchronizer(nil, nil)

	var grid FieldGrid
	grid.SetCell(Thursday, 4, "Physics")
	if _, err := s.Save(ctx, grid); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if err := s.SelectDay(ctx, Thursday); err != nil {
		t.Fatalf("SelectDay() failed: %v", err)
	}
	stored, _, _ := store.Retrieve(ctx)
	assertConsistent(t, s, stored)

	// The day view is re-derived from storage, not from memory
	external := Timetable{"Thursday": {"Drama"}}
	_ = store.Persist(ctx, external)
	if err := s.SelectDay(ctx, Thursday); err != nil {
		t.Fatalf("SelectDay() failed: %v", err)
	}
	want, _ := RenderDay(Thursday, external)
	if s.Snapshot().DayView != want {
		t.Errorf("Day view should follow storage, got %s", s.Snapshot().DayView)
	}

	if err := s.SelectDay(ctx, Weekday("Sunday")); !errors.Is(err, ErrUnknownDay) {
		t.Errorf("SelectDay(Sunday) error = %v, want ErrUnknownDay", err)
	}

	_ = kv.Set(ctx, DefaultStorageKey, "{broken")
	before := s.Snapshot()
	if err := s.SelectDay(ctx, Friday); !errors.Is(err, ErrDeserialization) {
		t.Errorf("SelectDay() on corrupt storage error = %v, want ErrDeserialization", err)
	}
	if s.Snapshot() != before {
		t.Error("Failed SelectDay must leave the selection untouched")
	}
}

func TestSynchronizerSelectDayEmptyStorage(t *testing.T) {
	s, _, _ := newTestSynchronizer(nil, nil)
	if err := s.SelectDay(context.Background(), Wednesday); err != nil {
		t.Fatalf("SelectDay() failed: %v", err)
	}

	snap := s.Snapshot()
	want, _ := RenderDay(Wednesday, Timetable{})
	if snap.SelectedDay != Wednesday || snap.DayView != want {
		t.Errorf("Expected empty Wednesday view, got %s", snap.DayView)
	}
}

func TestSynchronizerPushRemote(t *testing.T) {
	ctx := context.Background()

	t.Run("Not configured", func(t *testing.T) {
		s, _, _ := newTestSynchronizer(nil, NewRemoteClient("", nil))
		if _, err := s.PushRemote(ctx, sampleTimetable()); !errors.Is(err, ErrRemoteNotConfigured) {
			t.Errorf("PushRemote() error = %v, want ErrRemoteNotConfigured", err)
		}
	})

	t.Run("One push at a time", func(t *testing.T) {
		received := make(chan struct{})
		release := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received <- struct{}{}
			<-release
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		s, _, _ := newTestSynchronizer(nil, NewRemoteClient(ts.URL, ts.Client()))
		before := s.Snapshot()

		first := Go(func() (Ack, error) {
			return s.PushRemote(ctx, sampleTimetable())
		})
		<-received

		if _, err := s.PushRemote(ctx, sampleTimetable()); !errors.Is(err, ErrBusy) {
			t.Errorf("Second PushRemote() error = %v, want ErrBusy", err)
		}

		close(release)
		res := <-first
		if res.Err != nil {
			t.Fatalf("First PushRemote() failed: %v", res.Err)
		}
		if res.Value.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", res.Value.StatusCode)
		}
		if s.Snapshot() != before {
			t.Error("Remote push must not change local state")
		}
	})

	t.Run("Returns once answered", func(t *testing.T) {
		var hits atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusAccepted)
		}))
		defer ts.Close()

		s, _, _ := newTestSynchronizer(nil, NewRemoteClient(ts.URL, ts.Client()))
		for i := 1; i <= 2; i++ {
			ack, err := s.PushRemote(ctx, sampleTimetable())
			if err != nil {
				t.Fatalf("PushRemote() #%d failed: %v", i, err)
			}
			if ack.StatusCode != http.StatusAccepted {
				t.Errorf("Expected status 202, got %d", ack.StatusCode)
			}
			if n := hits.Load(); n != int32(i) {
				t.Errorf("Expected %d requests after push #%d, got %d", i, i, n)
			}
		}
	})
}
