package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/hoarder/internal/record"
)

// DefaultBusyTimeout is how long a connection waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Store is the local record store.
// Uses SQLite with WAL mode and a single connection.
type Store struct {
	db     *sql.DB
	path   string
	ids    record.IDGenerator
	logger *slog.Logger

	// mu serializes writes with the notification batches they produce.
	mu          sync.Mutex
	closed      bool
	subs        map[uint64]*Subscription
	nextSubID   uint64
	dataVersion int64

	stopPoll chan struct{}
	pollDone chan struct{}
}

// Options configures Open.
type Options struct {
	IDGenerator  record.IDGenerator
	Logger       *slog.Logger
	BusyTimeout  time.Duration
	PollInterval time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithIDGenerator overrides the identity generator (default UUIDv7).
func WithIDGenerator(g record.IDGenerator) Option {
	return func(o *Options) { o.IDGenerator = g }
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *Options) { o.BusyTimeout = d }
}

// WithPollInterval enables a background loop that refreshes subscribed
// views when another connection commits, and reports unreadable storage.
// Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) { o.PollInterval = d }
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations before returning; no read or
// write is possible until migration has succeeded.
//
// Migration failures are returned as *MigrationError and leave the
// database unchanged.
func Open(path string, opts ...Option) (*Store, error) {
	o := Options{
		IDGenerator: record.UUIDv7Generator{},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		BusyTimeout: DefaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	// Open database (creates file if doesn't exist)
	db, err := sql.Open(driverName, dsn(path, o.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	from, err := migrate(ctx, db, migrations, currentSchemaVersion)
	if err != nil {
		db.Close()
		return nil, err
	}
	if from != currentSchemaVersion {
		o.Logger.Info("schema migrated", "path", path, "from", from, "to", currentSchemaVersion)
	}

	s := &Store{
		db:     db,
		path:   path,
		ids:    o.IDGenerator,
		logger: o.Logger,
		subs:   make(map[uint64]*Subscription),
	}

	if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&s.dataVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read data_version: %w", err)
	}

	if o.PollInterval > 0 {
		s.stopPoll = make(chan struct{})
		s.pollDone = make(chan struct{})
		go s.pollLoop(o.PollInterval)
	}

	return s, nil
}

// Close stops polling, drains every subscription and closes the database.
// Pending change batches are delivered before Close returns, so Close must
// not be called from inside a change handler.
//
// Safe to call more than once.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*Subscription, 0, len(s.subs))
	for id, sub := range s.subs {
		subs = append(subs, sub)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	if s.stopPoll != nil {
		close(s.stopPoll)
		<-s.pollDone
	}

	for _, sub := range subs {
		sub.drain()
	}

	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - writes made here bypass change notification until the
// next Refresh.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path given to Open.
func (s *Store) Path() string {
	return s.path
}

// SchemaVersion returns the schema version stored in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// Backup writes a consistent copy of the database to dest.
// dest must not exist.
func (s *Store) Backup(ctx context.Context, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup: %s already exists", dest)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("backup: checkpoint: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	s.logger.Info("backup written", "dest", dest)
	return nil
}

// Refresh re-evaluates every subscribed view and delivers the resulting
// change batches. Views that can no longer be read receive a terminal
// error event; the returned error then wraps ErrStorageUnreadable.
//
// Only needed when the database is modified outside this Store (another
// process, or DB()). Writes through the Store notify on their own.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.publishLocked(ctx)
}

// pollLoop refreshes views on every tick until Close.
func (s *Store) pollLoop(interval time.Duration) {
	defer close(s.pollDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			if err := s.poll(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
				s.logger.Warn("poll failed", "error", err)
			}
		}
	}
}

// poll refreshes subscribed views if another connection committed since
// the last check. A failing read terminates every subscription.
func (s *Store) poll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(s.subs) == 0 {
		return nil
	}

	var version int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		err = fmt.Errorf("%w: %w", ErrStorageUnreadable, err)
		s.failAllLocked(err)
		return err
	}
	if version == s.dataVersion {
		return nil
	}
	s.dataVersion = version

	return s.publishLocked(ctx)
}

// dsn builds the connection string for path.
//
// The pragmas travel as go-sqlite3 DSN parameters so that every connection
// the pool opens gets them, not only the first one. Transactions begin
// IMMEDIATE: a writer holds the write lock from its first statement, so
// what it reads inside the transaction is still current when it writes.
func dsn(path string, busyTimeout time.Duration) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	params.Set("_foreign_keys", "1")
	params.Set("_txlock", "immediate")
	return path + "?" + params.Encode()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
