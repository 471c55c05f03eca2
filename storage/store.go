package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codebeep/logging"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrRouteNotFound is returned when no room is recorded for a session.
var ErrRouteNotFound = errors.New("storage: route not found")

// Route maps an agent session to the chat room that started it, so
// completion events can be relayed to the right destination after a restart.
type Route struct {
	SessionID string `gorm:"primaryKey"`
	RoomID    string `gorm:"not null;index:idx_room_id"`
	Agent     string `gorm:"default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// gormLogger bridges GORM's logger onto the codebeep logger
type gormLogger struct {
	level logger.LogLevel
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{level: level}
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		logging.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		logging.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		logging.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs SQL queries, only in debug mode
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level < logger.Info {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logging.Logger.Error("gorm query error",
			"error", err,
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	} else if elapsed > 200*time.Millisecond {
		logging.Logger.Warn("slow query",
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	} else {
		logging.Logger.Debug("gorm query",
			"duration", elapsed,
			"sql", sql,
			"rows", rows,
		)
	}
}

func newGormLogger() logger.Interface {
	if os.Getenv("CODEBEEP_DEBUG") == "1" {
		return (&gormLogger{}).LogMode(logger.Info)
	}
	return (&gormLogger{}).LogMode(logger.Silent)
}

// Store persists session-to-room routes in SQLite.
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the route database with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	// Expand home directory if present
	if len(dbPath) > 0 && dbPath[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, dbPath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		PrepareStmt: false, // Disable to avoid transaction conflicts
		NowFunc:     func() time.Time { return time.Now().UTC() },
		Logger:      newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for concurrent access
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA synchronous=NORMAL")

	if err := db.AutoMigrate(&Route{}); err != nil {
		return nil, fmt.Errorf("failed to migrate route schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveRoute records (or replaces) the room that should receive completion
// notices for a session.
func (s *Store) SaveRoute(ctx context.Context, sessionID, roomID, agent string) error {
	route := Route{SessionID: sessionID, RoomID: roomID, Agent: agent}

	return withRetry(func() error {
		return s.db.WithContext(ctx).Save(&route).Error
	}, 3)
}

// RouteForSession returns the room recorded for a session, or
// ErrRouteNotFound when the session was never routed (or was expired).
func (s *Store) RouteForSession(ctx context.Context, sessionID string) (string, error) {
	var route Route
	err := s.db.WithContext(ctx).First(&route, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrRouteNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load route for %s: %w", sessionID, err)
	}
	return route.RoomID, nil
}

// DeleteRoute removes the route for a session. Deleting a route that does
// not exist is not an error.
func (s *Store) DeleteRoute(ctx context.Context, sessionID string) error {
	return withRetry(func() error {
		return s.db.WithContext(ctx).Delete(&Route{}, "session_id = ?", sessionID).Error
	}, 3)
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withRetry retries operations on SQLITE_BUSY with exponential backoff
func withRetry(fn func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			time.Sleep(time.Millisecond * time.Duration(50*(i+1)))
			continue
		}
		return err
	}
	return err
}
