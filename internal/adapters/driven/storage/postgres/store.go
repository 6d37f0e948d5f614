// Package postgres provides a PostgreSQL implementation of the driven
// stores, for deployments that run more than one calsync process against
// shared state.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

const operationTimeout = 5 * time.Second

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

const schema = `
CREATE TABLE IF NOT EXISTS calsync_sync_tokens (
	user_id     TEXT NOT NULL,
	calendar_id TEXT NOT NULL,
	sync_token  TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, calendar_id)
);
CREATE TABLE IF NOT EXISTS calsync_connections (
	user_id      TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT '',
	last_sync_at TIMESTAMPTZ,
	last_error   TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS calsync_connections_status ON calsync_connections (status);
CREATE TABLE IF NOT EXISTS calsync_webhook_channels (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	calendar_id  TEXT NOT NULL,
	resource_id  TEXT NOT NULL DEFAULT '',
	resource_uri TEXT NOT NULL DEFAULT '',
	token        TEXT NOT NULL DEFAULT '',
	expiration   TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS calsync_webhook_channels_user ON calsync_webhook_channels (user_id);
CREATE INDEX IF NOT EXISTS calsync_webhook_channels_expiration ON calsync_webhook_channels (expiration);
CREATE TABLE IF NOT EXISTS calsync_credentials (
	user_id            TEXT PRIMARY KEY,
	account_identifier TEXT NOT NULL DEFAULT '',
	oauth              JSONB,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS calsync_scheduler_tasks (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	interval_seconds BIGINT NOT NULL,
	last_run         TIMESTAMPTZ,
	next_run         TIMESTAMPTZ,
	last_error       TEXT NOT NULL DEFAULT '',
	last_success     TIMESTAMPTZ,
	enabled          BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS calsync_scheduler_runs (
	id              BIGSERIAL PRIMARY KEY,
	task_id         TEXT NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	ended_at        TIMESTAMPTZ NOT NULL,
	success         BOOLEAN NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	processed       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS calsync_scheduler_runs_task ON calsync_scheduler_runs (task_id, started_at);
`

// Store is a PostgreSQL-backed storage providing every store interface.
// The connection is opened and the schema created on first use.
type Store struct {
	dsn    string
	openDB sqlOpenFunc
	now    func() time.Time

	initMu sync.Mutex
	db     *sql.DB
}

// NewStore creates a store for dsn. No connection is made until first use.
func NewStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres dsn", domain.ErrInvalidInput)
	}
	return &Store{
		dsn:    dsn,
		openDB: sql.Open,
		now:    time.Now,
	}, nil
}

// Ping connects, creating the schema if needed.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ensureReady opens the pool and creates the schema. A failed attempt
// leaves the store unopened so the next call tries again.
func (s *Store) ensureReady() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := s.openDB("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}
	s.db = db
	return nil
}

// SyncTokenStore returns a SyncTokenStore backed by this store.
func (s *Store) SyncTokenStore() driven.SyncTokenStore {
	return &syncTokenStore{store: s}
}

// ConnectionStore returns a ConnectionStore backed by this store.
func (s *Store) ConnectionStore() driven.ConnectionStore {
	return &connectionStore{store: s}
}

// ChannelStore returns a ChannelStore backed by this store.
func (s *Store) ChannelStore() driven.ChannelStore {
	return &channelStore{store: s}
}

// CredentialsStore returns a CredentialsStore backed by this store.
func (s *Store) CredentialsStore() driven.CredentialsStore {
	return &credentialsStore{store: s}
}

// SchedulerStore returns a SchedulerStore backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// ==================== Sync Token Store ====================

type syncTokenStore struct {
	store *Store
}

var _ driven.SyncTokenStore = (*syncTokenStore)(nil)

func (s *syncTokenStore) Get(ctx context.Context, userID, calendarID string) (string, error) {
	if err := s.store.ensureReady(); err != nil {
		return "", err
	}
	var token string
	err := s.store.db.QueryRowContext(ctx,
		`SELECT sync_token FROM calsync_sync_tokens WHERE user_id = $1 AND calendar_id = $2`,
		userID, calendarID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading sync token: %w", err)
	}
	return token, nil
}

func (s *syncTokenStore) Set(ctx context.Context, userID, calendarID, token string) error {
	if err := s.store.ensureReady(); err != nil {
		return err
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO calsync_sync_tokens (user_id, calendar_id, sync_token, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, calendar_id)
		DO UPDATE SET sync_token = EXCLUDED.sync_token, updated_at = EXCLUDED.updated_at`,
		userID, calendarID, token, s.store.now().UTC())
	if err != nil {
		return fmt.Errorf("saving sync token: %w", err)
	}
	return nil
}

func (s *syncTokenStore) State(ctx context.Context, userID, calendarID string) (*domain.SyncState, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	var state domain.SyncState
	err := s.store.db.QueryRowContext(ctx, `
		SELECT user_id, calendar_id, sync_token, updated_at
		FROM calsync_sync_tokens WHERE user_id = $1 AND calendar_id = $2`,
		userID, calendarID).Scan(&state.UserID, &state.CalendarID, &state.SyncToken, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sync token: %w", err)
	}
	return &state, nil
}

func (s *syncTokenStore) List(ctx context.Context, userID string) ([]domain.SyncState, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT user_id, calendar_id, sync_token, updated_at
		FROM calsync_sync_tokens WHERE user_id = $1 ORDER BY calendar_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sync tokens: %w", err)
	}
	defer rows.Close()

	var states []domain.SyncState
	for rows.Next() {
		var state domain.SyncState
		if err := rows.Scan(&state.UserID, &state.CalendarID, &state.SyncToken, &state.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning sync token: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// ==================== Connection Store ====================

type connectionStore struct {
	store *Store
}

var _ driven.ConnectionStore = (*connectionStore)(nil)

const connectionColumns = `user_id, status, last_sync_at, last_error, updated_at`

func (s *connectionStore) Get(ctx context.Context, userID string) (*domain.Connection, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	return scanConnection(s.store.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM calsync_connections WHERE user_id = $1`, userID))
}

// UpdateStatus locks the row for the read-apply-write so concurrent
// processes never interleave.
func (s *connectionStore) UpdateStatus(ctx context.Context, update domain.StatusUpdate) error {
	if update.UserID == "" {
		return domain.ErrInvalidInput
	}
	if err := s.store.ensureReady(); err != nil {
		return err
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	current, err := scanConnection(tx.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM calsync_connections WHERE user_id = $1 FOR UPDATE`, update.UserID))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	next := update.Apply(current, s.store.now().UTC())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO calsync_connections (`+connectionColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_sync_at = EXCLUDED.last_sync_at,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		next.UserID, string(next.Status), nullTime(next.LastSyncAt), next.LastError, next.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving connection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing connection: %w", err)
	}
	return nil
}

func (s *connectionStore) ListByStatus(ctx context.Context, status domain.ConnectionStatus) ([]domain.Connection, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM calsync_connections WHERE status = $1 ORDER BY user_id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

// ==================== Channel Store ====================

type channelStore struct {
	store *Store
}

var _ driven.ChannelStore = (*channelStore)(nil)

const channelColumns = `id, user_id, calendar_id, resource_id, resource_uri, token, expiration, created_at`

func (s *channelStore) Save(ctx context.Context, ch domain.WebhookChannel) error {
	if ch.ID == "" || ch.UserID == "" {
		return domain.ErrInvalidInput
	}
	if err := s.store.ensureReady(); err != nil {
		return err
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = s.store.now().UTC()
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO calsync_webhook_channels (`+channelColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			calendar_id = EXCLUDED.calendar_id,
			resource_id = EXCLUDED.resource_id,
			resource_uri = EXCLUDED.resource_uri,
			token = EXCLUDED.token,
			expiration = EXCLUDED.expiration`,
		ch.ID, ch.UserID, ch.CalendarID, ch.ResourceID, ch.ResourceURI, ch.Token,
		nullTime(ch.Expiration), ch.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving channel: %w", err)
	}
	return nil
}

func (s *channelStore) Get(ctx context.Context, channelID string) (*domain.WebhookChannel, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	return scanChannel(s.store.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM calsync_webhook_channels WHERE id = $1`, channelID))
}

func (s *channelStore) Delete(ctx context.Context, channelID string) error {
	if err := s.store.ensureReady(); err != nil {
		return err
	}
	if _, err := s.store.db.ExecContext(ctx,
		`DELETE FROM calsync_webhook_channels WHERE id = $1`, channelID); err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	return nil
}

func (s *channelStore) ListByUser(ctx context.Context, userID string) ([]domain.WebhookChannel, error) {
	return s.list(ctx,
		`SELECT `+channelColumns+` FROM calsync_webhook_channels WHERE user_id = $1 ORDER BY id`, userID)
}

func (s *channelStore) ListExpiring(ctx context.Context, before time.Time) ([]domain.WebhookChannel, error) {
	return s.list(ctx, `
		SELECT `+channelColumns+` FROM calsync_webhook_channels
		WHERE expiration IS NOT NULL AND expiration < $1
		ORDER BY expiration, id`, before.UTC())
}

func (s *channelStore) list(ctx context.Context, query string, args ...any) ([]domain.WebhookChannel, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var channels []domain.WebhookChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// ==================== Credentials Store ====================

type credentialsStore struct {
	store *Store
}

var _ driven.CredentialsStore = (*credentialsStore)(nil)

func (s *credentialsStore) Save(ctx context.Context, creds domain.Credentials) error {
	if creds.UserID == "" {
		return domain.ErrInvalidInput
	}
	if err := s.store.ensureReady(); err != nil {
		return err
	}

	var oauth any
	if creds.OAuth != nil {
		data, err := json.Marshal(creds.OAuth)
		if err != nil {
			return fmt.Errorf("marshalling oauth credentials: %w", err)
		}
		oauth = string(data)
	}

	now := s.store.now().UTC()
	if creds.CreatedAt.IsZero() {
		creds.CreatedAt = now
	}
	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = now
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO calsync_credentials (user_id, account_identifier, oauth, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			account_identifier = EXCLUDED.account_identifier,
			oauth = EXCLUDED.oauth,
			updated_at = EXCLUDED.updated_at`,
		creds.UserID, creds.AccountIdentifier, oauth, creds.CreatedAt, creds.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

func (s *credentialsStore) Get(ctx context.Context, userID string) (*domain.Credentials, error) {
	if err := s.store.ensureReady(); err != nil {
		return nil, err
	}
	var creds domain.Credentials
	var oauth sql.NullString
	err := s.store.db.QueryRowContext(ctx, `
		SELECT user_id, account_identifier, oauth, created_at, updated_at
		FROM calsync_credentials WHERE user_id = $1`, userID).
		Scan(&creds.UserID, &creds.AccountIdentifier, &oauth, &creds.CreatedAt, &creds.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning credentials: %w", err)
	}
	if oauth.Valid {
		var tokens domain.OAuthCredentials
		if err := json.Unmarshal([]byte(oauth.String), &tokens); err != nil {
			return nil, fmt.Errorf("unmarshalling oauth credentials: %w", err)
		}
		creds.OAuth = &tokens
	}
	return &creds, nil
}

func (s *credentialsStore) Delete(ctx context.Context, userID string) error {
	if err := s.store.ensureReady(); err != nil {
		return err
	}
	if _, err := s.store.db.ExecContext(ctx,
		`DELETE FROM calsync_credentials WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

// ==================== Scanners ====================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*domain.Connection, error) {
	var conn domain.Connection
	var status string
	var lastSyncAt sql.NullTime
	if err := row.Scan(&conn.UserID, &status, &lastSyncAt, &conn.LastError, &conn.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning connection: %w", err)
	}
	conn.Status = domain.ConnectionStatus(status)
	conn.LastSyncAt = lastSyncAt.Time
	return &conn, nil
}

func scanChannel(row rowScanner) (*domain.WebhookChannel, error) {
	var ch domain.WebhookChannel
	var expiration sql.NullTime
	if err := row.Scan(&ch.ID, &ch.UserID, &ch.CalendarID, &ch.ResourceID,
		&ch.ResourceURI, &ch.Token, &expiration, &ch.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning channel: %w", err)
	}
	ch.Expiration = expiration.Time
	return &ch, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
