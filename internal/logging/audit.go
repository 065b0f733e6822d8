// Package logging provides structured logging with slog for chronoproof.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types: the operations a proof goes through over its
// lifetime, plus the calendar interactions and errors along the way.
const (
	AuditEventStamp          AuditEventType = "stamp"
	AuditEventCalendarSubmit AuditEventType = "calendar_submit"
	AuditEventCalendarFetch  AuditEventType = "calendar_fetch"
	AuditEventUpgrade        AuditEventType = "upgrade"
	AuditEventVerify         AuditEventType = "verify"
	AuditEventPrune          AuditEventType = "prune"
	AuditEventAnchor         AuditEventType = "anchor"
	AuditEventCacheHit       AuditEventType = "cache_hit"
	AuditEventCacheMiss      AuditEventType = "cache_miss"
	AuditEventConfigChange   AuditEventType = "config_change"
	AuditEventError          AuditEventType = "error"
	AuditEventStartup        AuditEventType = "startup"
	AuditEventShutdown       AuditEventType = "shutdown"
)

// AuditEvent represents one audited operation.
type AuditEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  AuditEventType         `json:"event_type"`
	Component  string                 `json:"component"`
	RequestID  string                 `json:"request_id,omitempty"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource,omitempty"`
	Result     string                 `json:"result"` // "success", "failure"
	Details    map[string]interface{} `json:"details,omitempty"`
	SourceFile string                 `json:"source_file,omitempty"`
	SourceLine int                    `json:"source_line,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	FilePath   string
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool
	Component  string
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   defaultAuditLogPath(),
		MaxSize:    50,
		MaxAge:     90,
		MaxBackups: 10,
		Compress:   true,
		Component:  "chronoproof",
	}
}

func defaultAuditLogPath() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		homeDir, _ := os.UserHomeDir()
		stateHome = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateHome, "chronoproof", "audit.log")
}

// AuditLogger writes one JSON line per audited operation.
type AuditLogger struct {
	config  *AuditLoggerConfig
	rotator *FileRotator
	logger  *slog.Logger
	mu      sync.Mutex
}

var (
	defaultAuditLogger *AuditLogger
	auditLoggerOnce    sync.Once
)

// DefaultAuditLogger returns the default global audit logger.
func DefaultAuditLogger() *AuditLogger {
	auditLoggerOnce.Do(func() {
		var err error
		defaultAuditLogger, err = NewAuditLogger(DefaultAuditConfig())
		if err != nil {
			defaultAuditLogger = &AuditLogger{config: DefaultAuditConfig(), logger: slog.Default()}
		}
	})
	return defaultAuditLogger
}

// SetDefaultAuditLogger sets the default global audit logger.
func SetDefaultAuditLogger(l *AuditLogger) {
	defaultAuditLogger = l
}

// NewAuditLogger creates a new AuditLogger.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}

	rotatorCfg := &Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		Format:     FormatJSON,
		Level:      LevelInfo,
	}

	rotator, err := NewFileRotator(rotatorCfg)
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}

	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: LevelInfo})
	return &AuditLogger{config: cfg, rotator: rotator, logger: slog.New(handler)}, nil
}

// Log writes an audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}
	if event.SourceFile == "" {
		_, file, line, ok := runtime.Caller(1)
		if ok {
			event.SourceFile = file
			event.SourceLine = line
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')

	if a.rotator == nil {
		return nil
	}
	if _, err := a.rotator.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogStamp logs a stamp-creation event: one file batched into a leaf.
func (a *AuditLogger) LogStamp(ctx context.Context, fileDigestHex string, success bool) error {
	result := "success"
	if !success {
		result = "failure"
	}
	return a.Log(ctx, AuditEvent{EventType: AuditEventStamp, Action: "stamp_created", Resource: fileDigestHex, Result: result})
}

// LogCalendarSubmit logs a submission attempt to one calendar URL.
func (a *AuditLogger) LogCalendarSubmit(ctx context.Context, calendarURL string, success bool, err error) error {
	result := "success"
	var errStr string
	if !success {
		result = "failure"
		if err != nil {
			errStr = err.Error()
		}
	}
	return a.Log(ctx, AuditEvent{EventType: AuditEventCalendarSubmit, Action: "calendar_submit", Resource: calendarURL, Result: result, Error: errStr})
}

// LogUpgrade logs the result of one upgrade engine run.
func (a *AuditLogger) LogUpgrade(ctx context.Context, msgDigestHex string, changed bool) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventUpgrade,
		Action:    "upgrade_run",
		Resource:  msgDigestHex,
		Result:    "success",
		Details:   map[string]interface{}{"changed": changed},
	})
}

// LogVerify logs a verify_timestamp call's outcome.
func (a *AuditLogger) LogVerify(ctx context.Context, msgDigestHex string, success bool) error {
	result := "success"
	if !success {
		result = "failure"
	}
	return a.Log(ctx, AuditEvent{EventType: AuditEventVerify, Action: "verify_timestamp", Resource: msgDigestHex, Result: result})
}

// LogPrune logs a prune pass.
func (a *AuditLogger) LogPrune(ctx context.Context, msgDigestHex string, changed bool) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventPrune,
		Action:    "prune",
		Resource:  msgDigestHex,
		Result:    "success",
		Details:   map[string]interface{}{"changed": changed},
	})
}

// LogAnchor logs a Bitcoin anchoring attempt.
func (a *AuditLogger) LogAnchor(ctx context.Context, msgDigestHex string, height uint64, success bool) error {
	result := "success"
	if !success {
		result = "failure"
	}
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventAnchor,
		Action:    "anchor_block",
		Resource:  msgDigestHex,
		Result:    result,
		Details:   map[string]interface{}{"height": height},
	})
}

// LogError logs an error event.
func (a *AuditLogger) LogError(ctx context.Context, operation string, err error, details map[string]interface{}) error {
	if details == nil {
		details = make(map[string]interface{})
	}
	return a.Log(ctx, AuditEvent{EventType: AuditEventError, Action: operation, Result: "failure", Error: err.Error(), Details: details})
}

// Close closes the audit logger.
func (a *AuditLogger) Close() error {
	if a.rotator != nil {
		return a.rotator.Close()
	}
	return nil
}

// Sync flushes any buffered audit events.
func (a *AuditLogger) Sync() error {
	if a.rotator != nil {
		return a.rotator.Sync()
	}
	return nil
}

// Audit logs an audit event using the default audit logger.
func Audit(ctx context.Context, event AuditEvent) error {
	return DefaultAuditLogger().Log(ctx, event)
}

// AuditError logs an error using the default audit logger.
func AuditError(ctx context.Context, operation string, err error, details map[string]interface{}) error {
	return DefaultAuditLogger().LogError(ctx, operation, err, details)
}
