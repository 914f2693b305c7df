package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"net/url"
)

// Store owns the canonical timetable and its persistence under a single key
type Store struct {
	kv  KVStore
	key string
}

// NewStore creates a store; an empty key falls back to DefaultStorageKey
func NewStore(kv KVStore, key string) *Store {
	if key == "" {
		key = DefaultStorageKey
	}
	return &Store{kv: kv, key: key}
}

// Key returns the storage key the timetable is written under
func (s *Store) Key() string {
	return s.key
}

// Capture assembles a timetable from every field of the grid
func (s *Store) Capture(grid FieldGrid) Timetable {
	t := make(Timetable, len(Weekdays))
	for i, day := range Weekdays {
		subjects := make([]string, Periods)
		copy(subjects, grid[i][:])
		t[string(day)] = subjects
	}
	return t
}

// CaptureForm reads the posted grid fields. Every field must be present.
func (s *Store) CaptureForm(form url.Values) (FieldGrid, error) {
	var grid FieldGrid
	for i, day := range Weekdays {
		for period := 0; period < Periods; period++ {
			name := FieldName(day, period)
			values, ok := form[name]
			if !ok || len(values) == 0 {
				return FieldGrid{}, fmt.Errorf("%w: %s", ErrMissingField, name)
			}
			grid[i][period] = values[0]
		}
	}
	return grid, nil
}

// Persist overwrites the stored timetable
func (s *Store) Persist(ctx context.Context, t Timetable) error {
	data, err := Serialize(t)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to persist timetable: %w", err)
	}
	return nil
}

// Retrieve reads the stored timetable. ok is false if nothing was ever stored.
func (s *Store) Retrieve(ctx context.Context) (Timetable, bool, error) {
	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read timetable: %w", err)
	}
	if !ok || data == "" {
		return nil, false, nil
	}

	t, err := Deserialize([]byte(data))
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// LoadDefaultIfAbsent persists the bundled default when storage is empty.
// Failures are logged and swallowed; the store stays empty.
func (s *Store) LoadDefaultIfAbsent(ctx context.Context, src DefaultSource) (Timetable, bool) {
	if src == nil {
		return nil, false
	}

	_, ok, err := s.Retrieve(ctx)
	if err != nil || ok {
		return nil, false
	}

	data, err := src.Fetch(ctx)
	if err != nil {
		log.Printf("Default timetable not loaded: %v", err)
		return nil, false
	}

	t, err := Deserialize(data)
	if err != nil {
		log.Printf("Default timetable not loaded: %v", err)
		return nil, false
	}

	if err := s.Persist(ctx, t); err != nil {
		log.Printf("Default timetable not loaded: %v", err)
		return nil, false
	}

	log.Printf("✅ Default timetable loaded from %s", src)
	return t, true
}

// DefaultSource provides the bundled default timetable
type DefaultSource interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FSDefaultSource reads the default timetable from a file system
type FSDefaultSource struct {
	FS   fs.FS
	Name string
}

func (f FSDefaultSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := fs.ReadFile(f.FS, f.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	return data, nil
}

func (f FSDefaultSource) String() string {
	return f.Name
}

// HTTPDefaultSource fetches the default timetable from a URL
type HTTPDefaultSource struct {
	URL        string
	HTTPClient *http.Client
}

func (h HTTPDefaultSource) Fetch(ctx context.Context) ([]byte, error) {
	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrResourceUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	return data, nil
}

func (h HTTPDefaultSource) String() string {
	return h.URL
}
