package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/AaronLay10/watermon/internal/alerts"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "no password",
			opts: Options{Host: "db", Port: "5432", User: "watermon", Database: "watermon"},
			want: "host=db port=5432 user=watermon dbname=watermon sslmode=disable",
		},
		{
			name: "plain password",
			opts: Options{Host: "db", Port: "5432", User: "u", Password: "secret", Database: "d", SSLMode: "require"},
			want: "host=db port=5432 user=u password=secret dbname=d sslmode=require",
		},
		{
			name: "password needing quotes",
			opts: Options{Host: "db", Port: "5432", User: "u", Password: `it's a pa\ss`, Database: "d"},
			want: `host=db port=5432 user=u password='it\'s a pa\\ss' dbname=d sslmode=disable`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.ConnString(); got != tt.want {
				t.Errorf("ConnString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("PGHOST", "pg.internal")
	t.Setenv("PGPORT", "")
	t.Setenv("PGUSER", "")
	t.Setenv("PGDATABASE", "water")
	t.Setenv("PGSSLMODE", "")

	o := OptionsFromEnv("plant-1", "pw")
	if o.Host != "pg.internal" || o.Port != "5432" || o.User != "watermon" || o.Database != "water" {
		t.Errorf("unexpected options %+v", o)
	}
	if o.Password != "pw" || o.Site != "plant-1" || o.SSLMode != "disable" {
		t.Errorf("unexpected options %+v", o)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolved := created.Add(time.Minute)
	e := alerts.HistoryEntry{
		HistoryID: "0b5b8f0e-3c1f-4c3e-9a5b-0d6f1f1e2a10",
		Alert: alerts.Alert{
			ID:                 "leak_S3-TAP1",
			Kind:               alerts.KindLeak,
			PipeID:             "S3-TAP1",
			CreatedAt:          created,
			Resolved:           true,
			ResolvedAt:         &resolved,
			AssignedMechanicID: "M001",
			Status:             alerts.StatusResolved,
		},
	}

	row, err := encodeEntry(e)
	if err != nil {
		t.Fatalf("encodeEntry: %v", err)
	}
	if row.alertID != "leak_S3-TAP1" || row.kind != "leak" || !row.resolved {
		t.Errorf("unexpected row %+v", row)
	}
	if row.mechanicID == nil || *row.mechanicID != "M001" {
		t.Errorf("expected mechanic id column, got %v", row.mechanicID)
	}

	back, err := decodeEntry(row.body)
	if err != nil {
		t.Fatalf("decodeEntry: %v", err)
	}
	if back.HistoryID != e.HistoryID || back.ID != e.ID || !back.CreatedAt.Equal(created) {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if back.ResolvedAt == nil || !back.ResolvedAt.Equal(resolved) {
		t.Errorf("resolved_at lost: %+v", back.ResolvedAt)
	}
}

func TestEncodeEntryRequiresID(t *testing.T) {
	if _, err := encodeEntry(alerts.HistoryEntry{Alert: alerts.Alert{ID: "low_water_level"}}); err == nil {
		t.Error("expected error for entry without history id")
	}
	if _, err := decodeEntry([]byte("{not json")); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{-1: defaultLoadLimit, 0: defaultLoadLimit, 5: 5, maxLoadLimit + 1: maxLoadLimit}
	for in, want := range cases {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

// TestClientAgainstDatabase runs only when WATERMON_TEST_PG is set.
func TestClientAgainstDatabase(t *testing.T) {
	if os.Getenv("WATERMON_TEST_PG") == "" {
		t.Skip("WATERMON_TEST_PG not set")
	}
	ctx := context.Background()
	c, err := New(ctx, OptionsFromEnv("test-"+time.Now().Format("150405.000"), os.Getenv("PGPASSWORD")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	e := alerts.HistoryEntry{
		HistoryID: time.Now().Format(time.RFC3339Nano),
		Alert:     alerts.Alert{ID: alerts.LowWaterID, Kind: alerts.KindWaterLevel, CreatedAt: time.Now()},
	}
	if err := c.SaveHistory(ctx, e); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	e.Resolved = true
	now := time.Now()
	e.ResolvedAt = &now
	if err := c.SaveHistory(ctx, e); err != nil {
		t.Fatalf("SaveHistory update: %v", err)
	}

	rows, err := c.LoadHistory(ctx, 10)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(rows) != 1 || !rows[0].Resolved {
		t.Fatalf("expected one resolved row, got %+v", rows)
	}
}
