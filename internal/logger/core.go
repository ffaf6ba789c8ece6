package logger

import (
	"go.uber.org/zap/zapcore"
)

// Field keys that scope a log entry to a sync run.
const (
	RunIDKey     = "run_id"
	ProfileIDKey = "profile_id"
)

// DBCore is a custom Zap Core that copies run scoped entries to the database
type DBCore struct {
	zapcore.Core
	writer *DBLogWriter
	fields []zapcore.Field
}

// NewDBCore wraps an existing core (like console logger) and adds DB logging
func NewDBCore(baseCore zapcore.Core, writer *DBLogWriter) zapcore.Core {
	return &DBCore{
		Core:   baseCore,
		writer: writer,
	}
}

// With keeps the wrapper so fields added by logger.With still reach Write
func (c *DBCore) With(fields []zapcore.Field) zapcore.Core {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)
	return &DBCore{
		Core:   c.Core.With(fields),
		writer: c.writer,
		fields: all,
	}
}

// Write is called for every log entry
func (c *DBCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	// Only entries emitted while a run executes are persisted
	if runID, ok := enc.Fields[RunIDKey].(string); ok && runID != "" {
		profileID, _ := enc.Fields[ProfileIDKey].(string)
		delete(enc.Fields, RunIDKey)
		delete(enc.Fields, ProfileIDKey)

		c.writer.AddLog(LogEntry{
			Level:     entry.Level,
			Message:   entry.Message,
			Caller:    entry.Caller.Function,
			RunID:     runID,
			ProfileID: profileID,
			Fields:    enc.Fields,
			Time:      entry.Time,
		})
	}

	// Call the underlying core (so it still prints to Console/File)
	return c.Core.Write(entry, fields)
}

// Check decides if we should log this level
func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
