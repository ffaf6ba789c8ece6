package logger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-datasync/internal/database"
	"go-datasync/internal/models"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"
)

// LogEntry holds the data passed from Zap to our worker
type LogEntry struct {
	Level     zapcore.Level
	Message   string
	Caller    string // Function name
	RunID     string
	ProfileID string
	Fields    map[string]interface{}
	Time      time.Time
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	collection *mongo.Collection
	logChan    chan LogEntry
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDBLogWriter initializes the worker
func NewDBLogWriter(mongodb *database.MongodbDB) *DBLogWriter {
	writer := &DBLogWriter{
		collection: mongodb.DB.Collection(models.RunLogCollection),
		logChan:    make(chan LogEntry, 1000), // Buffer 1000 logs
		done:       make(chan struct{}),
	}

	// Start the background worker immediately
	go writer.processLogs()

	return writer
}

// AddLog is called by our Zap hook
func (w *DBLogWriter) AddLog(entry LogEntry) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	select {
	case w.logChan <- entry:
		// Log pushed to channel
	default:
		// Channel full: drop log to prevent blocking the sync
		fmt.Println("DB Log Channel Full! Dropping log:", entry.Message)
	}
}

// Close stops accepting entries and waits until the queued ones are written
func (w *DBLogWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.logChan)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *DBLogWriter) processLogs() {
	defer close(w.done)
	for entry := range w.logChan {
		// Insert into DB (safely ignore errors to keep app running)
		w.collection.InsertOne(context.Background(), toRunLog(entry))
	}
}

func toRunLog(entry LogEntry) models.RunLog {
	createdAt := entry.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return models.RunLog{
		RunID:     entry.RunID,
		ProfileID: entry.ProfileID,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Caller:    entry.Caller,
		Fields:    entry.Fields,
		CreatedAt: createdAt.UTC(),
	}
}
