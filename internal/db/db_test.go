package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestParseUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.NewString()
	parsed, err := ParseUUID(" " + id + " ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := UUIDToString(parsed); got != id {
		t.Fatalf("unexpected id: %s", got)
	}
	if _, err := ParseUUID("invalid"); err == nil {
		t.Fatalf("expected error for invalid uuid")
	}
	if got := UUIDToString(pgtype.UUID{}); got != "" {
		t.Fatalf("expected empty string for NULL uuid, got %q", got)
	}
}

func TestNullableHelpers(t *testing.T) {
	t.Parallel()

	if Text("  ").Valid {
		t.Fatalf("blank text should be NULL")
	}
	if got := TextToString(Text("ana")); got != "ana" {
		t.Fatalf("unexpected text: %q", got)
	}
	if Timestamptz(time.Time{}).Valid {
		t.Fatalf("zero time should be NULL")
	}
	if TimePtr(pgtype.Timestamptz{}) != nil {
		t.Fatalf("NULL timestamp should map to nil")
	}
	now := time.Now()
	if got := TimePtr(Timestamptz(now)); got == nil || !got.Equal(now) {
		t.Fatalf("unexpected time: %v", got)
	}
}

func TestMigrateURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"postgres://u:p@h:5432/db?sslmode=disable":   "pgx5://u:p@h:5432/db?sslmode=disable",
		"postgresql://u:p@h:5432/db?sslmode=disable": "pgx5://u:p@h:5432/db?sslmode=disable",
		"pgx5://already": "pgx5://already",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}
