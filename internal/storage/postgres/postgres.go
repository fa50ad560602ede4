package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/watermon/internal/alerts"
)

const (
	defaultLoadLimit = 200
	maxLoadLimit     = 10000
)

// Options are the connection parameters.
type Options struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	// Site scopes rows so several deployments can share one database.
	Site string
}

// OptionsFromEnv reads the standard PG* variables. The password is passed
// in so callers can resolve it from a secret file.
func OptionsFromEnv(site, password string) Options {
	return Options{
		Host:     getEnv("PGHOST", "127.0.0.1"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "watermon"),
		Database: getEnv("PGDATABASE", "watermon"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
		Password: password,
		Site:     site,
	}
}

// ConnString renders the lib/pq key/value connection string.
func (o Options) ConnString() string {
	parts := []string{
		"host=" + o.Host,
		"port=" + o.Port,
		"user=" + o.User,
	}
	if o.Password != "" {
		parts = append(parts, "password="+quote(o.Password))
	}
	parts = append(parts, "dbname="+o.Database)
	sslmode := o.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts = append(parts, "sslmode="+sslmode)
	return strings.Join(parts, " ")
}

// quote escapes a value for the key/value format when needed.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Client persists alert history in Postgres.
type Client struct {
	db   *sql.DB
	site string
}

// New connects and ensures the schema exists.
func New(ctx context.Context, o Options) (*Client, error) {
	db, err := sql.Open("postgres", o.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:   db,
		site: o.Site,
	}

	if err := client.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create alert_history table: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS alert_history (
			history_id  TEXT PRIMARY KEY,
			alert_id    TEXT NOT NULL,
			kind        TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			resolved    BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at TIMESTAMPTZ,
			mechanic_id TEXT,
			site        TEXT NOT NULL,
			body        JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alert_history_created ON alert_history(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_alert_history_site ON alert_history(site);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

// SaveHistory inserts or updates one history entry.
func (c *Client) SaveHistory(ctx context.Context, e alerts.HistoryEntry) error {
	row, err := encodeEntry(e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alert_history (history_id, alert_id, kind, created_at, resolved, resolved_at, mechanic_id, site, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (history_id) DO UPDATE SET
			resolved    = EXCLUDED.resolved,
			resolved_at = EXCLUDED.resolved_at,
			mechanic_id = EXCLUDED.mechanic_id,
			body        = EXCLUDED.body
	`
	_, err = c.db.ExecContext(ctx, query,
		row.historyID, row.alertID, row.kind, row.createdAt,
		row.resolved, row.resolvedAt, row.mechanicID, c.site, row.body)
	return err
}

// LoadHistory returns the newest entries for this site, newest first.
func (c *Client) LoadHistory(ctx context.Context, limit int) ([]alerts.HistoryEntry, error) {
	limit = clampLimit(limit)

	query := `
		SELECT body
		FROM alert_history
		WHERE site = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, c.site, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerts.HistoryEntry
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		e, err := decodeEntry(body)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

type entryRow struct {
	historyID  string
	alertID    string
	kind       string
	createdAt  time.Time
	resolved   bool
	resolvedAt *time.Time
	mechanicID *string
	body       []byte
}

func encodeEntry(e alerts.HistoryEntry) (entryRow, error) {
	if e.HistoryID == "" {
		return entryRow{}, fmt.Errorf("history entry for %s has no id", e.ID)
	}
	body, err := json.Marshal(e)
	if err != nil {
		return entryRow{}, fmt.Errorf("failed to marshal history entry: %w", err)
	}
	row := entryRow{
		historyID:  e.HistoryID,
		alertID:    e.ID,
		kind:       string(e.Kind),
		createdAt:  e.CreatedAt,
		resolved:   e.Resolved,
		resolvedAt: e.ResolvedAt,
		body:       body,
	}
	if e.AssignedMechanicID != "" {
		id := e.AssignedMechanicID
		row.mechanicID = &id
	}
	return row, nil
}

func decodeEntry(body []byte) (alerts.HistoryEntry, error) {
	var e alerts.HistoryEntry
	if err := json.Unmarshal(body, &e); err != nil {
		return alerts.HistoryEntry{}, fmt.Errorf("failed to unmarshal history entry: %w", err)
	}
	return e, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLoadLimit
	}
	if limit > maxLoadLimit {
		return maxLoadLimit
	}
	return limit
}
