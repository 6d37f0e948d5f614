package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/calsync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// timeLayout is a fixed-width UTC layout, so stored timestamps sort
// lexically in the same order as chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a unified SQLite-based storage that provides access to
// all store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (creating if needed) the SQLite database at path.
// If path is empty, defaults to ~/.calsync/data/calsync.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".calsync", "data", "calsync.db")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serialises writers; status updates read then write.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:   db,
		path: path,
		now:  time.Now,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SyncTokenStore returns a SyncTokenStore interface backed by this store.
func (s *Store) SyncTokenStore() driven.SyncTokenStore {
	return &syncTokenStore{store: s}
}

// ConnectionStore returns a ConnectionStore interface backed by this store.
func (s *Store) ConnectionStore() driven.ConnectionStore {
	return &connectionStore{store: s}
}

// ChannelStore returns a ChannelStore interface backed by this store.
func (s *Store) ChannelStore() driven.ChannelStore {
	return &channelStore{store: s}
}

// SchedulerStore returns a SchedulerStore interface backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// CredentialsStore returns a CredentialsStore interface backed by this store.
func (s *Store) CredentialsStore() driven.CredentialsStore {
	return &credentialsStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Sync Token Store ====================

// syncTokenStore implements driven.SyncTokenStore.
type syncTokenStore struct {
	store *Store
}

var _ driven.SyncTokenStore = (*syncTokenStore)(nil)

// Get returns the stored token or "" when none exists.
func (s *syncTokenStore) Get(ctx context.Context, userID, calendarID string) (string, error) {
	var token string
	err := s.store.db.QueryRowContext(ctx, `
		SELECT sync_token FROM sync_tokens WHERE user_id = ? AND calendar_id = ?
	`, userID, calendarID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading sync token: %w", err)
	}
	return token, nil
}

// Set upserts the token. An empty token clears the cursor.
func (s *syncTokenStore) Set(ctx context.Context, userID, calendarID, token string) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_tokens (user_id, calendar_id, sync_token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, calendar_id) DO UPDATE SET
			sync_token = excluded.sync_token,
			updated_at = excluded.updated_at
	`, userID, calendarID, token, formatTime(s.store.now()))
	if err != nil {
		return fmt.Errorf("saving sync token: %w", err)
	}
	return nil
}

// State returns the full cursor record.
func (s *syncTokenStore) State(ctx context.Context, userID, calendarID string) (*domain.SyncState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT user_id, calendar_id, sync_token, updated_at
		FROM sync_tokens WHERE user_id = ? AND calendar_id = ?
	`, userID, calendarID)

	var state domain.SyncState
	var updatedAt string
	if err := row.Scan(&state.UserID, &state.CalendarID, &state.SyncToken, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync token: %w", err)
	}
	state.UpdatedAt = parseTime(updatedAt)
	return &state, nil
}

// List returns every cursor for a user ordered by calendar.
func (s *syncTokenStore) List(ctx context.Context, userID string) ([]domain.SyncState, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT user_id, calendar_id, sync_token, updated_at
		FROM sync_tokens WHERE user_id = ? ORDER BY calendar_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sync tokens: %w", err)
	}
	defer rows.Close()

	var states []domain.SyncState //nolint:prealloc // size unknown from query
	for rows.Next() {
		var state domain.SyncState
		var updatedAt string
		if err := rows.Scan(&state.UserID, &state.CalendarID, &state.SyncToken, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning sync token: %w", err)
		}
		state.UpdatedAt = parseTime(updatedAt)
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync tokens: %w", err)
	}
	return states, nil
}

// ==================== Connection Store ====================

// connectionStore implements driven.ConnectionStore.
type connectionStore struct {
	store *Store
}

var _ driven.ConnectionStore = (*connectionStore)(nil)

const connectionColumns = `user_id, status, last_sync_at, last_error, updated_at`

// Get returns a user's connection.
func (s *connectionStore) Get(ctx context.Context, userID string) (*domain.Connection, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE user_id = ?`, userID)
	return scanConnection(row)
}

// UpdateStatus applies an update inside a transaction so concurrent
// writers never interleave a read and a write.
func (s *connectionStore) UpdateStatus(ctx context.Context, update domain.StatusUpdate) error {
	if update.UserID == "" {
		return domain.ErrInvalidInput
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	current, err := scanConnection(tx.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE user_id = ?`, update.UserID))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	next := update.Apply(current, s.store.now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO connections (user_id, status, last_sync_at, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status = excluded.status,
			last_sync_at = excluded.last_sync_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, next.UserID, string(next.Status), formatNullableTime(next.LastSyncAt),
		next.LastError, formatTime(next.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving connection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing connection: %w", err)
	}
	return nil
}

// ListByStatus returns connections in a status ordered by user.
func (s *connectionStore) ListByStatus(ctx context.Context, status domain.ConnectionStatus) ([]domain.Connection, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE status = ? ORDER BY user_id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []domain.Connection //nolint:prealloc // size unknown from query
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connections: %w", err)
	}
	return conns, nil
}

// ==================== Channel Store ====================

// channelStore implements driven.ChannelStore.
type channelStore struct {
	store *Store
}

var _ driven.ChannelStore = (*channelStore)(nil)

const channelColumns = `id, user_id, calendar_id, resource_id, resource_uri, token, expiration, created_at`

// Save creates or replaces a channel.
func (s *channelStore) Save(ctx context.Context, ch domain.WebhookChannel) error {
	if ch.ID == "" || ch.UserID == "" {
		return domain.ErrInvalidInput
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = s.store.now()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO webhook_channels (`+channelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			calendar_id = excluded.calendar_id,
			resource_id = excluded.resource_id,
			resource_uri = excluded.resource_uri,
			token = excluded.token,
			expiration = excluded.expiration
	`, ch.ID, ch.UserID, ch.CalendarID, ch.ResourceID, ch.ResourceURI, ch.Token,
		formatNullableTime(ch.Expiration), formatTime(ch.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving channel: %w", err)
	}
	return nil
}

// Get returns a channel by ID.
func (s *channelStore) Get(ctx context.Context, channelID string) (*domain.WebhookChannel, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM webhook_channels WHERE id = ?`, channelID)
	return scanChannel(row)
}

// Delete removes a channel.
func (s *channelStore) Delete(ctx context.Context, channelID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM webhook_channels WHERE id = ?", channelID)
	if err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	return nil
}

// ListByUser returns a user's channels.
func (s *channelStore) ListByUser(ctx context.Context, userID string) ([]domain.WebhookChannel, error) {
	return s.list(ctx,
		`SELECT `+channelColumns+` FROM webhook_channels WHERE user_id = ? ORDER BY id`, userID)
}

// ListExpiring returns channels expiring before the given time.
// Channels without an expiration are never returned.
func (s *channelStore) ListExpiring(ctx context.Context, before time.Time) ([]domain.WebhookChannel, error) {
	return s.list(ctx, `
		SELECT `+channelColumns+` FROM webhook_channels
		WHERE expiration IS NOT NULL AND expiration < ?
		ORDER BY expiration, id
	`, formatTime(before))
}

func (s *channelStore) list(ctx context.Context, query string, args ...any) ([]domain.WebhookChannel, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var channels []domain.WebhookChannel //nolint:prealloc // size unknown from query
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channels: %w", err)
	}
	return channels, nil
}

// =============================================================================
// CredentialsStore Implementation
// =============================================================================

type credentialsStore struct {
	store *Store
}

var _ driven.CredentialsStore = (*credentialsStore)(nil)

// Save stores or updates credentials.
func (s *credentialsStore) Save(ctx context.Context, creds domain.Credentials) error {
	if creds.UserID == "" {
		return domain.ErrInvalidInput
	}

	oauthJSON, err := json.Marshal(creds.OAuth)
	if err != nil {
		return fmt.Errorf("marshalling oauth credentials: %w", err)
	}

	now := s.store.now()
	if creds.CreatedAt.IsZero() {
		creds.CreatedAt = now
	}
	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = now
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO credentials
			(user_id, account_identifier, oauth, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			account_identifier = excluded.account_identifier,
			oauth = excluded.oauth,
			updated_at = excluded.updated_at
	`, creds.UserID, creds.AccountIdentifier, string(oauthJSON),
		formatTime(creds.CreatedAt), formatTime(creds.UpdatedAt))

	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// Get retrieves credentials by user ID.
func (s *credentialsStore) Get(ctx context.Context, userID string) (*domain.Credentials, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT user_id, account_identifier, oauth, created_at, updated_at
		FROM credentials WHERE user_id = ?
	`, userID)

	return scanCredentials(row)
}

// Delete removes credentials by user ID.
func (s *credentialsStore) Delete(ctx context.Context, userID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM credentials WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

// ==================== Scanners ====================

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanConnection scans a single connection row.
func scanConnection(row rowScanner) (*domain.Connection, error) {
	var conn domain.Connection
	var status string
	var lastSyncAt sql.NullString
	var updatedAt string

	if err := row.Scan(&conn.UserID, &status, &lastSyncAt, &conn.LastError, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning connection: %w", err)
	}
	conn.Status = domain.ConnectionStatus(status)
	conn.LastSyncAt = parseNullableTime(lastSyncAt)
	conn.UpdatedAt = parseTime(updatedAt)
	return &conn, nil
}

// scanChannel scans a single channel row.
func scanChannel(row rowScanner) (*domain.WebhookChannel, error) {
	var ch domain.WebhookChannel
	var expiration sql.NullString
	var createdAt string

	if err := row.Scan(&ch.ID, &ch.UserID, &ch.CalendarID, &ch.ResourceID,
		&ch.ResourceURI, &ch.Token, &expiration, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning channel: %w", err)
	}
	ch.Expiration = parseNullableTime(expiration)
	ch.CreatedAt = parseTime(createdAt)
	return &ch, nil
}

// scanCredentials scans a single credentials row.
func scanCredentials(row rowScanner) (*domain.Credentials, error) {
	var creds domain.Credentials
	var oauthJSON sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&creds.UserID, &creds.AccountIdentifier,
		&oauthJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning credentials: %w", err)
	}

	if oauthJSON.Valid && oauthJSON.String != jsonNull {
		var oauth domain.OAuthCredentials
		if err := json.Unmarshal([]byte(oauthJSON.String), &oauth); err != nil {
			return nil, fmt.Errorf("unmarshalling oauth credentials: %w", err)
		}
		creds.OAuth = &oauth
	}
	creds.CreatedAt = parseTime(createdAt)
	creds.UpdatedAt = parseTime(updatedAt)

	return &creds, nil
}

// formatTime formats t in the sortable UTC layout.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp, returning zero on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// formatNullableTime formats t, or returns nil for the zero time.
func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseNullableTime parses a nullable timestamp column.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	return parseTime(s.String)
}
