package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName   = "focuslock.db"
	busyTimeoutMs = 5000
)

// EncryptedStore implements the profile, session and block-event
// repositories on a SQLCipher encrypted SQLite database. The CLI and the
// daemon open the same file; a partial unique index keeps at most one
// session active across both.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to create data directory")
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	// Open with SQLCipher key as DSN parameter
	dsn := dbPath + "?_pragma_key=x'" + keyHex + "'&_pragma_cipher_page_size=4096"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "failed to open encrypted database")
	}
	// One connection: pragmas stay applied and transactions serialize in-process.
	db.SetMaxOpenConns(1)

	// Verify the key works before touching the schema
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "failed to connect to encrypted database")
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "failed to create tables")
	}
	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	PRAGMA busy_timeout = ` + strconv.Itoa(busyTimeoutMs) + `;

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		end_reason TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL,
		strategy_id TEXT NOT NULL,
		emergency_attempts_used INTEGER NOT NULL DEFAULT 0,
		paused_durations TEXT NOT NULL DEFAULT '[]',
		state TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE UNIQUE INDEX IF NOT EXISTS sessions_single_active ON sessions(active) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS sessions_profile_start ON sessions(profile_id, start_time);

	CREATE TABLE IF NOT EXISTS block_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		name TEXT NOT NULL,
		layer TEXT NOT NULL,
		dest_ip TEXT NOT NULL,
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS block_events_at ON block_events(at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.migrateSessionVersion()
}

// migrateSessionVersion adds the version column to databases created before it existed.
func (s *EncryptedStore) migrateSessionVersion() error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('sessions') WHERE name = 'version'`).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = s.db.Exec(`ALTER TABLE sessions ADD COLUMN version INTEGER NOT NULL DEFAULT 0`)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- domain.ProfileRepository implementation ---

type profileBody struct {
	BlockedApps        []string                 `json:"blockedApps,omitempty"`
	BlockedDomains     []string                 `json:"blockedDomains,omitempty"`
	StrategyID         string                   `json:"strategyId"`
	StrategyData       string                   `json:"strategyData,omitempty"`
	BreaksEnabled      bool                     `json:"breaksEnabled"`
	BreakMinutes       int                      `json:"breakMinutes"`
	StrictMode         bool                     `json:"strictMode"`
	AllowMode          bool                     `json:"allowMode"`
	WebBlockingEnabled bool                     `json:"webBlockingEnabled"`
	Tokens             []domain.PhysicalToken   `json:"tokens,omitempty"`
	Emergency          domain.EmergencySettings `json:"emergency"`
	RemoteLockEnabled  bool                     `json:"remoteLockEnabled"`
	Schedule           *domain.Schedule         `json:"schedule,omitempty"`
}

// SaveProfile validates and upserts p.
func (s *EncryptedStore) SaveProfile(ctx context.Context, p *domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(profileBody{
		BlockedApps:        p.BlockedApps,
		BlockedDomains:     p.BlockedDomains,
		StrategyID:         p.StrategyID,
		StrategyData:       p.StrategyData,
		BreaksEnabled:      p.BreaksEnabled,
		BreakMinutes:       p.BreakMinutes,
		StrictMode:         p.StrictMode,
		AllowMode:          p.AllowMode,
		WebBlockingEnabled: p.WebBlockingEnabled,
		Tokens:             p.Tokens,
		Emergency:          p.Emergency,
		RemoteLockEnabled:  p.RemoteLockEnabled,
		Schedule:           p.Schedule,
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "encode profile")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, string(body), p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "save profile")
	}
	return nil
}

// GetProfile loads a profile by id.
func (s *EncryptedStore) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, body, created_at, updated_at FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	return p, err
}

// ListProfiles returns all profiles ordered by name.
func (s *EncryptedStore) ListProfiles(ctx context.Context) ([]*domain.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, body, created_at, updated_at FROM profiles ORDER BY name, id`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "list profiles")
	}
	defer rows.Close()

	var out []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProfile removes a profile.
func (s *EncryptedStore) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "delete profile")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*domain.Profile, error) {
	var (
		p                domain.Profile
		body             string
		created, updated int64
	)
	if err := row.Scan(&p.ID, &p.Name, &body, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "read profile")
	}
	var b profileBody
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return nil, apperrors.Attr(apperrors.Wrap(err, apperrors.KindInternal, "decode profile"), "profile", p.ID)
	}
	p.BlockedApps = b.BlockedApps
	p.BlockedDomains = b.BlockedDomains
	p.StrategyID = b.StrategyID
	p.StrategyData = b.StrategyData
	p.BreaksEnabled = b.BreaksEnabled
	p.BreakMinutes = b.BreakMinutes
	p.StrictMode = b.StrictMode
	p.AllowMode = b.AllowMode
	p.WebBlockingEnabled = b.WebBlockingEnabled
	p.Tokens = b.Tokens
	p.Emergency = b.Emergency
	p.RemoteLockEnabled = b.RemoteLockEnabled
	p.Schedule = b.Schedule
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// --- domain.SessionRepository implementation ---

// sessionState holds the session fields that are never queried on.
type sessionState struct {
	PauseStartedAt          *int64   `json:"pauseStartedAt,omitempty"`
	BreakEndsAt             *int64   `json:"breakEndsAt,omitempty"`
	StrategyStartData       string   `json:"strategyStartData,omitempty"`
	BlockedApps             []string `json:"blockedApps,omitempty"`
	BlockedDomains          []string `json:"blockedDomains,omitempty"`
	WebBlockingEnabled      bool     `json:"webBlockingEnabled"`
	TimerMs                 *int64   `json:"timerMs,omitempty"`
	EmergencyCooldownUntil  *int64   `json:"emergencyCooldownUntil,omitempty"`
	RemoteLockActivatedTime *int64   `json:"remoteLockActivatedTime,omitempty"`
	RemoteLockActivatedBy   *string  `json:"remoteLockActivatedBy,omitempty"`
}

const sessionColumns = `id, profile_id, start_time, end_time, end_reason, strategy_id,
	emergency_attempts_used, paused_durations, state, version`

// CreateIfNoneActive inserts s unless another session is active.
func (s *EncryptedStore) CreateIfNoneActive(ctx context.Context, sess *domain.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindUnavailable, "begin transaction")
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE active = 1`).Scan(&n); err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "check active session")
	}
	if n > 0 {
		return domain.ErrSessionAlreadyActive
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(args, activeFlag(sess))...,
	)
	if err != nil {
		return mapSessionWriteError(err, "create session")
	}
	if err := tx.Commit(); err != nil {
		return mapSessionWriteError(err, "commit session")
	}
	return nil
}

// Active returns the active session, or ErrNoActiveSession.
func (s *EncryptedStore) Active(ctx context.Context) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE active = 1`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoActiveSession
	}
	return sess, err
}

// GetSession loads a session by id.
func (s *EncryptedStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	return sess, err
}

// UpdateSession replaces a stored session if nobody wrote it since it was
// read. The CLI and the daemon share the file, so the version check is what
// keeps one from overwriting the other's change.
func (s *EncryptedStore) UpdateSession(ctx context.Context, sess *domain.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	// args is id, the eight data columns, version.
	id, data := args[0], args[1:len(args)-1]
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			profile_id = ?, start_time = ?, end_time = ?, end_reason = ?, strategy_id = ?,
			emergency_attempts_used = ?, paused_durations = ?, state = ?, active = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		append(data, activeFlag(sess), id, sess.Version)...,
	)
	if err != nil {
		return mapSessionWriteError(err, "update session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sess.ID).Scan(&exists)
		if err != nil {
			return apperrors.Wrap(err, apperrors.KindInternal, "check session")
		}
		if exists == 0 {
			return domain.ErrSessionNotFound
		}
		return apperrors.Attr(domain.ErrSessionModified, "session", sess.ID)
	}
	sess.Version++
	return nil
}

// LatestByProfile returns the most recently started session of a profile,
// or nil when it has none.
func (s *EncryptedStore) LatestByProfile(ctx context.Context, profileID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE profile_id = ? ORDER BY start_time DESC LIMIT 1`, profileID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

// ListSessions returns sessions started at or after since, newest first.
func (s *EncryptedStore) ListSessions(ctx context.Context, since time.Time) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE start_time >= ? ORDER BY start_time DESC`, since.UnixMilli())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "list sessions")
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteByProfile removes every session of a profile.
func (s *EncryptedStore) DeleteByProfile(ctx context.Context, profileID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE profile_id = ?`, profileID); err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "delete sessions")
	}
	return nil
}

func sessionArgs(sess *domain.Session) ([]any, error) {
	paused := sess.PausedDurations
	if paused == nil {
		paused = []domain.PausedDuration{}
	}
	pausedJSON, err := json.Marshal(paused)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "encode paused durations")
	}

	st := sessionState{
		PauseStartedAt:          toMillis(sess.PauseStartedAt),
		BreakEndsAt:             toMillis(sess.BreakEndsAt),
		StrategyStartData:       sess.StrategyStartData,
		BlockedApps:             sess.BlockedApps,
		BlockedDomains:          sess.BlockedDomains,
		WebBlockingEnabled:      sess.WebBlockingEnabled,
		EmergencyCooldownUntil:  toMillis(sess.EmergencyCooldownUntil),
		RemoteLockActivatedTime: toMillis(sess.RemoteLockActivatedTime),
		RemoteLockActivatedBy:   sess.RemoteLockActivatedBy,
	}
	if sess.TimerDuration != nil {
		ms := sess.TimerDuration.Milliseconds()
		st.TimerMs = &ms
	}
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "encode session state")
	}

	var end any
	if sess.EndTime != nil {
		end = sess.EndTime.UnixMilli()
	}
	return []any{
		sess.ID,
		sess.ProfileID,
		sess.StartTime.UnixMilli(),
		end,
		string(sess.EndReason),
		sess.StrategyID,
		sess.EmergencyAttemptsUsed,
		string(pausedJSON),
		string(stateJSON),
		sess.Version,
	}, nil
}

// activeFlag feeds the partial unique index; ended sessions are 0.
func activeFlag(sess *domain.Session) any {
	if sess.IsActive() {
		return 1
	}
	return 0
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		sess              domain.Session
		start             int64
		end               sql.NullInt64
		reason            string
		pausedJSON, state string
	)
	err := row.Scan(&sess.ID, &sess.ProfileID, &start, &end, &reason, &sess.StrategyID,
		&sess.EmergencyAttemptsUsed, &pausedJSON, &state, &sess.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "read session")
	}

	sess.StartTime = fromMillis(start)
	if end.Valid {
		t := fromMillis(end.Int64)
		sess.EndTime = &t
	}
	sess.EndReason = domain.EndReason(reason)

	if err := json.Unmarshal([]byte(pausedJSON), &sess.PausedDurations); err != nil {
		return nil, apperrors.Attr(apperrors.Wrap(err, apperrors.KindInternal, "decode paused durations"), "session", sess.ID)
	}
	if len(sess.PausedDurations) == 0 {
		sess.PausedDurations = nil
	}

	var st sessionState
	if err := json.Unmarshal([]byte(state), &st); err != nil {
		return nil, apperrors.Attr(apperrors.Wrap(err, apperrors.KindInternal, "decode session state"), "session", sess.ID)
	}
	sess.PauseStartedAt = fromMillisPtr(st.PauseStartedAt)
	sess.BreakEndsAt = fromMillisPtr(st.BreakEndsAt)
	sess.StrategyStartData = st.StrategyStartData
	sess.BlockedApps = st.BlockedApps
	sess.BlockedDomains = st.BlockedDomains
	sess.WebBlockingEnabled = st.WebBlockingEnabled
	if st.TimerMs != nil {
		d := time.Duration(*st.TimerMs) * time.Millisecond
		sess.TimerDuration = &d
	}
	sess.EmergencyCooldownUntil = fromMillisPtr(st.EmergencyCooldownUntil)
	sess.RemoteLockActivatedTime = fromMillisPtr(st.RemoteLockActivatedTime)
	sess.RemoteLockActivatedBy = st.RemoteLockActivatedBy
	return &sess, nil
}

func mapSessionWriteError(err error, op string) error {
	var sqlErr sqlcipher.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlcipher.ErrConstraint {
		return domain.ErrSessionAlreadyActive
	}
	return apperrors.Wrap(err, apperrors.KindInternal, op)
}

// --- domain.BlockEventRepository implementation ---

// RecordBlock appends a block event.
func (s *EncryptedStore) RecordBlock(ctx context.Context, ev domain.BlockEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_events (domain, name, layer, dest_ip, at) VALUES (?, ?, ?, ?, ?)`,
		ev.Domain, ev.Name, ev.Layer, ev.DestIP, ev.At.UnixMilli(),
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "record block event")
	}
	return nil
}

// CountBlocks counts recorded blocks per domain since the given time.
func (s *EncryptedStore) CountBlocks(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, COUNT(*) FROM block_events WHERE at >= ? GROUP BY domain`, since.UnixMilli())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "count block events")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindInternal, "read block count")
		}
		counts[d] = n
	}
	return counts, rows.Err()
}

func toMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

// Ensure EncryptedStore implements the repositories.
var (
	_ domain.ProfileRepository    = (*EncryptedStore)(nil)
	_ domain.SessionRepository    = (*EncryptedStore)(nil)
	_ domain.BlockEventRepository = (*EncryptedStore)(nil)
)
