package migrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestNames(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("Names() failed: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("Expected at least one embedded migration")
	}
	if names[0] != "001_timetable_kv.sql" {
		t.Errorf("Expected first migration 001_timetable_kv.sql, got %s", names[0])
	}

	all, err := load()
	if err != nil {
		t.Fatalf("load() failed: %v", err)
	}
	if !strings.Contains(all[0].sql, "CREATE TABLE IF NOT EXISTS timetable_kv") {
		t.Error("First migration should create timetable_kv")
	}
}

func TestUpRequiresDB(t *testing.T) {
	if err := Up(context.Background(), nil); err == nil {
		t.Error("Up(nil) should fail")
	}
}

func TestAlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "duplicate table", err: &pgconn.PgError{Code: "42P07"}, want: true},
		{name: "wrapped duplicate object", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "42710"}), want: true},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := alreadyExists(tt.err); got != tt.want {
				t.Errorf("alreadyExists() = %v, want %v", got, tt.want)
			}
		})
	}
}
