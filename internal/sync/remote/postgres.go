package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kimhsiao/resaletally/internal/models"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
)

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore keeps user documents in a PostgreSQL table with the same
// shape as the Supabase user_data table.
type PostgresStore struct {
	db    querier
	pool  *pgxpool.Pool
	table string

	beacons
}

// NewPostgresStore opens a connection pool for dsn. An empty table uses
// user_data.
func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	s := newPostgresStore(pool, table)
	s.pool = pool
	return s, nil
}

func newPostgresStore(db querier, table string) *PostgresStore {
	if table == "" {
		table = models.RemoteDocument{}.TableName()
	}
	return &PostgresStore{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// EnsureSchema creates the table when it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			user_id      TEXT PRIMARY KEY,
			data         JSONB NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			device_id    TEXT,
			sync_version BIGINT NOT NULL DEFAULT 0
		)`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Fetch returns the row for userID.
func (s *PostgresStore) Fetch(ctx context.Context, userID string) (*models.RemoteDocument, error) {
	query := `
		SELECT user_id, data, updated_at, COALESCE(device_id, ''), sync_version
		FROM ` + s.table + `
		WHERE user_id = $1`

	var (
		doc  models.RemoteDocument
		data []byte
	)
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&doc.UserID, &data, &doc.UpdatedAt, &doc.DeviceID, &doc.SyncVersion,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, syncpkg.ErrRemoteNotFound
		}
		return nil, fmt.Errorf("fetch %s: %w", userID, err)
	}

	if len(data) > 0 && string(data) != "null" {
		var snap models.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode %s: %w", userID, err)
		}
		doc.Data = &snap
	}
	return &doc, nil
}

// Upsert inserts the row or replaces the existing one for doc.UserID.
func (s *PostgresStore) Upsert(ctx context.Context, doc *models.RemoteDocument) error {
	data, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	query := `
		INSERT INTO ` + s.table + ` (user_id, data, updated_at, device_id, sync_version)
		VALUES ($1, $2::jsonb, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at,
			device_id = EXCLUDED.device_id,
			sync_version = EXCLUDED.sync_version`

	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if _, err := s.db.Exec(ctx, query,
		doc.UserID, string(data), updatedAt, doc.DeviceID, doc.SyncVersion,
	); err != nil {
		return fmt.Errorf("upsert %s: %w", doc.UserID, err)
	}
	return nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SendBeacon upserts doc in the background.
func (s *PostgresStore) SendBeacon(doc *models.RemoteDocument) {
	s.send("postgres", s.Upsert, doc)
}

// WaitBeacons waits for in-flight beacons.
func (s *PostgresStore) WaitBeacons(timeout time.Duration) bool {
	return s.wait(timeout)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

var (
	_ syncpkg.RemoteStore  = (*PostgresStore)(nil)
	_ syncpkg.BeaconSender = (*PostgresStore)(nil)
	_ syncpkg.Pinger       = (*PostgresStore)(nil)
)
