package sync

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	stdsync "sync"

	"go-datasync/internal/config"
	"go-datasync/internal/database"
	"go-datasync/internal/syncerr"

	"go.uber.org/zap"
)

// ProfileLocker excludes concurrent runs of one profile. TryLock never waits:
// a held lock fails with syncerr.ErrRunInProgress.
type ProfileLocker interface {
	TryLock(ctx context.Context, profileID string) (unlock func(), err error)
}

// NewProfileLocker selects the locker named by cfg.ProfileLock.
func NewProfileLocker(cfg *config.Config, dest *database.DestinationDB, logger *zap.Logger) (ProfileLocker, error) {
	switch cfg.ProfileLock {
	case "", "local":
		return NewLocalLocker(), nil
	case "postgres":
		if dest.Dialect.Name() != "postgres" {
			return nil, syncerr.Configuration("PROFILE_LOCK=postgres needs a postgres destination, got %s", dest.Dialect.Name())
		}
		return NewPostgresLocker(dest.DB, logger), nil
	case "none":
		logger.Warn("Profile locking disabled; concurrent runs of one profile may interleave")
		return NoopLocker{}, nil
	}
	return nil, syncerr.Configuration("unknown PROFILE_LOCK %q", cfg.ProfileLock)
}

// LocalLocker holds profile locks in process memory.
type LocalLocker struct {
	mu   stdsync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(ctx context.Context, profileID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[profileID]; ok {
		return nil, fmt.Errorf("%w: profile %s", syncerr.ErrRunInProgress, profileID)
	}
	l.held[profileID] = struct{}{}

	var once stdsync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, profileID)
			l.mu.Unlock()
		})
	}, nil
}

// PostgresLocker uses session advisory locks so that runs started by several
// processes against one destination exclude each other. Each lock pins one
// pooled connection until it is released.
type PostgresLocker struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresLocker(db *sql.DB, logger *zap.Logger) *PostgresLocker {
	return &PostgresLocker{db: db, logger: logger}
}

func (l *PostgresLocker) TryLock(ctx context.Context, profileID string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve lock connection: %w", err)
	}

	key := advisoryKey(profileID)
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire profile lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, fmt.Errorf("%w: profile %s", syncerr.ErrRunInProgress, profileID)
	}

	var once stdsync.Once
	return func() {
		once.Do(func() {
			if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", key); err != nil {
				l.logger.Error("Failed to release profile lock", zap.String("profile_id", profileID), zap.Error(err))
			}
			conn.Close()
		})
	}, nil
}

func advisoryKey(profileID string) int64 {
	h := fnv.New64a()
	h.Write([]byte("datasync:profile:" + profileID))
	return int64(h.Sum64())
}

// NoopLocker never excludes anything.
type NoopLocker struct{}

func (NoopLocker) TryLock(context.Context, string) (func(), error) {
	return func() {}, nil
}
