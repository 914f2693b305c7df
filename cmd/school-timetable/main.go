package main

import (
	"context"
	"embed"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/csrf"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/klabast/wb-services/school-timetable/internal/app"
	"github.com/klabast/wb-services/school-timetable/internal/commands"
	"github.com/klabast/wb-services/school-timetable/migrations"
)

const appVersion = "0.3.0"

//go:embed static/*
var staticFiles embed.FS

//go:embed static/index.html
var indexHTML string

type config struct {
	Port        int
	ReadOnly    bool
	Storage     string
	DataFile    string
	DatabaseURL string
	StorageKey  string
	RemoteURL   string
	DefaultURL  string
	CSRFKey     string
	LogLevel    string
}

func main() {
	cmd := newRootCmd()
	cmd.AddCommand(commands.NewHashPasswordCmd())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config

	cmd := &cobra.Command{
		Use:          "school-timetable",
		Short:        "Weekly school timetable editor (web)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyEnv(cmd, &cfg); err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Version = appVersion
	cmd.SetVersionTemplate("school-timetable v{{.Version}}\n")

	cmd.Flags().IntVar(&cfg.Port, "port", 8080, "Port to listen on [PORT]")
	cmd.Flags().BoolVar(&cfg.ReadOnly, "read-only", false, "Serve the timetable without editing")
	cmd.Flags().StringVar(&cfg.Storage, "storage", "file", "Storage backend: file, memory or postgres [STORAGE]")
	cmd.Flags().StringVar(&cfg.DataFile, "data-file", defaultDataFile(), "Data file for the file backend [DATA_FILE]")
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", "", "Postgres connection string for the postgres backend [DATABASE_URL]")
	cmd.Flags().StringVar(&cfg.StorageKey, "storage-key", app.DefaultStorageKey, "Key the timetable is stored under [STORAGE_KEY]")
	cmd.Flags().StringVar(&cfg.RemoteURL, "remote-url", "", "Spreadsheet web app URL for remote sync [REMOTE_SYNC_URL]")
	cmd.Flags().StringVar(&cfg.DefaultURL, "default-url", "", "Fetch the default timetable from this URL instead of the bundled file [DEFAULT_TIMETABLE_URL]")
	cmd.Flags().StringVar(&cfg.CSRFKey, "csrf-key", "", "32-byte key enabling CSRF protection [CSRF_KEY]")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level: info or debug [LOG_LEVEL]")

	return cmd
}

func defaultDataFile() string {
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, app.DefaultDataFile)
	}
	return app.DefaultDataFile
}

// applyEnv fills every flag not given on the command line from its environment variable
func applyEnv(cmd *cobra.Command, cfg *config) error {
	strs := map[string]struct {
		env string
		dst *string
	}{
		"storage":      {"STORAGE", &cfg.Storage},
		"data-file":    {"DATA_FILE", &cfg.DataFile},
		"database-url": {"DATABASE_URL", &cfg.DatabaseURL},
		"storage-key":  {"STORAGE_KEY", &cfg.StorageKey},
		"remote-url":   {"REMOTE_SYNC_URL", &cfg.RemoteURL},
		"default-url":  {"DEFAULT_TIMETABLE_URL", &cfg.DefaultURL},
		"csrf-key":     {"CSRF_KEY", &cfg.CSRFKey},
		"log-level":    {"LOG_LEVEL", &cfg.LogLevel},
	}
	for flag, s := range strs {
		if !cmd.Flags().Changed(flag) {
			*s.dst = getEnv(s.env, *s.dst)
		}
	}

	if !cmd.Flags().Changed("port") {
		port, err := getEnvInt("PORT", cfg.Port)
		if err != nil {
			return err
		}
		cfg.Port = port
	}

	switch cfg.Storage {
	case "file", "memory":
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return &configError{message: "postgres storage requires --database-url or DATABASE_URL"}
		}
	default:
		return &configError{message: "unknown storage backend: " + cfg.Storage}
	}

	if cfg.CSRFKey != "" && len(cfg.CSRFKey) != 32 {
		return &configError{message: "csrf key must be exactly 32 bytes"}
	}

	return nil
}

func serve(cfg config) error {
	debugEnabled := strings.EqualFold(strings.TrimSpace(cfg.LogLevel), "debug")
	debugf := func(format string, args ...any) {
		if debugEnabled {
			log.Printf("[DEBUG] "+format, args...)
		}
	}

	debugf("config loaded: port=%d storage=%s storage_key=%s remote=%t read_only=%t",
		cfg.Port, cfg.Storage, cfg.StorageKey, cfg.RemoteURL != "", cfg.ReadOnly)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStorage, err := openStorage(shutdownCtx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := closeStorage(); err != nil {
			log.Printf("Error closing storage: %v", err)
		}
	}()

	store := app.NewStore(kv, cfg.StorageKey)

	var defaults app.DefaultSource = app.FSDefaultSource{FS: staticFiles, Name: "static/" + app.DefaultTimetableFile}
	if cfg.DefaultURL != "" {
		defaults = app.HTTPDefaultSource{URL: cfg.DefaultURL, HTTPClient: app.DefaultRemoteHTTPClient()}
	}
	remote := app.NewRemoteClient(cfg.RemoteURL, app.DefaultRemoteHTTPClient())
	syncer := app.NewSynchronizer(store, defaults, remote)

	loaded, err := syncer.LoadFromStorage(shutdownCtx)
	if err != nil {
		log.Printf("⚠️  %s Starting empty: %v", app.MsgStorageCorrupt, err)
	}
	debugf("timetable loaded from storage: %t", loaded)
	if !loaded && err == nil {
		result := syncer.LoadDefaultAsync(shutdownCtx)
		go func() {
			res := <-result
			debugf("default timetable loaded: %t", res.Value)
		}()
	}

	var auth *app.Auth
	if !cfg.ReadOnly {
		path, err := app.AuthFilePath()
		if err != nil {
			return err
		}
		if auth, err = app.LoadAuth(path); err != nil {
			return fmt.Errorf("failed to load auth credentials: %w", err)
		}
	}

	page, err := app.ParsePage(indexHTML)
	if err != nil {
		return fmt.Errorf("failed to parse page template: %w", err)
	}

	server := app.NewServer(syncer, store, page, app.ServerOptions{Auth: auth, ReadOnly: cfg.ReadOnly})

	var handler http.Handler = newMux(server.Handler())
	if cfg.CSRFKey != "" {
		handler = withCSRF(handler, []byte(cfg.CSRFKey))
		debugf("csrf protection enabled")
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
	}()

	log.Printf("Starting school timetable in %s mode on http://localhost:%d", server.Mode(), cfg.Port)
	log.Printf("Storage: %s (key: %s)", cfg.Storage, store.Key())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// newMux serves the stylesheet next to the app routes. The page template in
// static/ stays private.
func newMux(appHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/static/style.css", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, staticFiles, "static/style.css")
	})
	mux.Handle("/", appHandler)
	return mux
}

func openStorage(ctx context.Context, cfg config) (app.KVStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage {
	case "memory":
		return app.NewMemoryKV(), noop, nil
	case "postgres":
		db, err := sqlx.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return app.NewPostgresKV(db), db.Close, nil
	default:
		log.Printf("Data file: %s", cfg.DataFile)
		return app.NewFileKV(cfg.DataFile), noop, nil
	}
}

// withCSRF protects form posts; plain HTTP requests are marked so the
// origin check does not require TLS
func withCSRF(next http.Handler, key []byte) http.Handler {
	protected := csrf.Protect(key, csrf.Secure(false), csrf.Path("/"))(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}
		protected.ServeHTTP(w, r)
	})
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, &configError{message: "invalid int for " + key + ": " + err.Error()}
	}
	return parsed, nil
}

type configError struct {
	message string
}

func (e *configError) Error() string {
	return e.message
}

var _ error = (*configError)(nil)
