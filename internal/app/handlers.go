package app

import (
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/csrf"
)

const maxUploadSize = 1 << 20

// Server exposes the timetable editor over HTTP
type Server struct {
	syncer   *Synchronizer
	store    *Store
	page     *template.Template
	auth     *Auth
	readOnly bool
}

// ServerOptions configures editing access
type ServerOptions struct {
	Auth     *Auth
	ReadOnly bool
}

func NewServer(syncer *Synchronizer, store *Store, page *template.Template, opts ServerOptions) *Server {
	return &Server{
		syncer:   syncer,
		store:    store,
		page:     page,
		auth:     opts.Auth,
		readOnly: opts.ReadOnly,
	}
}

// ParsePage parses the editor page template
func ParsePage(src string) (*template.Template, error) {
	return template.New("index").Parse(src)
}

// Mode returns the mode string for logging
func (s *Server) Mode() string {
	if s.readOnly {
		return ModeReadOnly
	}
	return ModeEdit
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.ServeIndex)
	mux.HandleFunc("/select-day", s.HandleSelectDay)
	mux.HandleFunc("/download", s.HandleDownload)
	mux.HandleFunc("/api/timetable", s.HandleTimetable)

	mux.HandleFunc("/save", s.editable(s.HandleSave))
	mux.HandleFunc("/show-form", s.editable(s.HandleShowForm))
	mux.HandleFunc("/upload", s.editable(s.HandleUpload))
	mux.HandleFunc("/remote", s.editable(s.HandleRemote))
	return mux
}

// editable rejects the request in read-only mode and enforces auth otherwise
func (s *Server) editable(next http.HandlerFunc) http.HandlerFunc {
	protected := s.auth.Require(next)
	return func(w http.ResponseWriter, r *http.Request) {
		if s.readOnly {
			http.Error(w, MsgReadOnlyMode, http.StatusForbidden)
			return
		}
		protected(w, r)
	}
}

type pageData struct {
	Snapshot
	Rows          []formRow
	Weekdays      []Weekday
	Headers       []string
	Message       string
	IsError       bool
	Editable      bool
	RemoteEnabled bool
	CSRFField     template.HTML
}

// renderPage writes the editor page with an optional message
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, message string, isError bool) {
	s.renderPageWithFields(w, r, status, message, isError, nil)
}

// renderPageWithFields shows fields in the input grid instead of the held
// ones, so unsaved edits survive a reload. A nil fields keeps the held grid.
func (s *Server) renderPageWithFields(w http.ResponseWriter, r *http.Request, status int, message string, isError bool, fields *FieldGrid) {
	snap := s.syncer.Snapshot()
	if fields != nil {
		snap.Fields = *fields
	}
	data := pageData{
		Snapshot:      snap,
		Rows:          formRows(snap.Fields),
		Weekdays:      Weekdays[:],
		Headers:       PeriodHeaders(),
		Message:       message,
		IsError:       isError,
		Editable:      !s.readOnly,
		RemoteEnabled: s.syncer.remote.Configured(),
		CSRFField:     csrf.TemplateField(r),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, data); err != nil {
		log.Printf("Error rendering page: %v", err)
	}
}

// ServeIndex serves the editor page
func (s *Server) ServeIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	s.renderPage(w, r, http.StatusOK, "", false)
}

// HandleSave captures the posted grid and saves it
func (s *Server) HandleSave(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	grid, ok := s.captureForm(w, r)
	if !ok {
		return
	}

	if _, err := s.syncer.Save(r.Context(), grid); err != nil {
		log.Printf("Error saving timetable: %v", err)
		s.renderPage(w, r, http.StatusInternalServerError, ErrInternalServer, true)
		return
	}
	s.renderPage(w, r, http.StatusOK, MsgSaved, false)
}

// HandleSelectDay switches the day view
func (s *Server) HandleSelectDay(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	day, dayErr := ParseWeekday(r.FormValue("day"))

	// The selector submits the input grid along with the day when the form is open
	var edited *FieldGrid
	if grid, err := s.store.CaptureForm(r.PostForm); err == nil {
		edited = &grid
	}

	if dayErr != nil {
		s.renderPageWithFields(w, r, http.StatusBadRequest, MsgUnknownDay, true, edited)
		return
	}

	if err := s.syncer.SelectDay(r.Context(), day); err != nil {
		log.Printf("Error selecting day: %v", err)
		if errors.Is(err, ErrDeserialization) {
			s.renderPageWithFields(w, r, http.StatusInternalServerError, MsgStorageCorrupt, true, edited)
			return
		}
		s.renderPageWithFields(w, r, http.StatusInternalServerError, ErrInternalServer, true, edited)
		return
	}
	s.renderPageWithFields(w, r, http.StatusOK, "", false, edited)
}

// HandleShowForm unfolds the input form
func (s *Server) HandleShowForm(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.syncer.ShowForm()
	s.renderPage(w, r, http.StatusOK, "", false)
}

// HandleUpload loads a timetable from an uploaded JSON file
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			s.renderPage(w, r, http.StatusBadRequest, MsgNoFileSelected, true)
			return
		}
		s.renderPage(w, r, http.StatusBadRequest, MsgInvalidFile, true)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.renderPage(w, r, http.StatusBadRequest, MsgInvalidFile, true)
		return
	}

	if _, err := s.syncer.LoadFromFile(r.Context(), data); err != nil {
		if errors.Is(err, ErrDeserialization) {
			s.renderPage(w, r, http.StatusBadRequest, MsgInvalidFile, true)
			return
		}
		log.Printf("Error loading timetable from file: %v", err)
		s.renderPage(w, r, http.StatusInternalServerError, ErrInternalServer, true)
		return
	}
	s.renderPage(w, r, http.StatusOK, MsgLoadedFromFile, false)
}

// HandleDownload exports the timetable. POST exports the posted grid, GET
// the grid the server currently holds.
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	exporter, err := NewExporter(r.FormValue("format"))
	if err != nil {
		http.Error(w, MsgInvalidFormat, http.StatusBadRequest)
		return
	}

	timetable := s.syncer.Capture()
	if r.Method == http.MethodPost {
		grid, ok := s.captureForm(w, r)
		if !ok {
			return
		}
		timetable = s.store.Capture(grid)
	}

	WriteExport(w, exporter, timetable)
}

// HandleRemote pushes the posted grid to the remote spreadsheet
func (s *Server) HandleRemote(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	grid, ok := s.captureForm(w, r)
	if !ok {
		return
	}

	ack, err := s.syncer.PushRemote(r.Context(), s.store.Capture(grid))
	if err != nil {
		log.Printf("Error pushing timetable to remote: %v", err)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrBusy):
			s.renderPageWithFields(w, r, http.StatusConflict, MsgRemoteBusy, true, &grid)
			return
		case errors.Is(err, ErrRemoteNotConfigured):
			status = http.StatusBadRequest
		case errors.Is(err, ErrRemoteSync):
			status = http.StatusBadGateway
		}
		s.renderPageWithFields(w, r, status, MsgRemoteFailed+err.Error(), true, &grid)
		return
	}

	log.Printf("✅ Timetable pushed to remote (request %s)", ack.RequestID)
	s.renderPageWithFields(w, r, http.StatusOK, MsgRemoteSaved, false, &grid)
}

// HandleTimetable returns the stored timetable in its serialized form
func (s *Server) HandleTimetable(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	t, ok, err := s.store.Retrieve(r.Context())
	if err != nil {
		log.Printf("Error reading timetable: %v", err)
		http.Error(w, ErrInternalServer, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "No timetable stored", http.StatusNotFound)
		return
	}

	data, err := Serialize(t)
	if err != nil {
		log.Printf("Error encoding timetable: %v", err)
		http.Error(w, ErrInternalServer, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		log.Printf("Error writing timetable: %v", err)
	}
}

// captureForm parses the posted grid, answering 400 when a field is missing
func (s *Server) captureForm(w http.ResponseWriter, r *http.Request) (FieldGrid, bool) {
	if err := r.ParseForm(); err != nil {
		s.renderPage(w, r, http.StatusBadRequest, MsgMissingField, true)
		return FieldGrid{}, false
	}
	grid, err := s.store.CaptureForm(r.PostForm)
	if err != nil {
		s.renderPage(w, r, http.StatusBadRequest, MsgMissingField, true)
		return FieldGrid{}, false
	}
	return grid, true
}
