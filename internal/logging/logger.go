package logging

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// contextKey is the type for context keys
type contextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey contextKey = "request_id"
	// UserIDKey is the context key for authenticated user IDs
	UserIDKey contextKey = "user_id"
	// SessionIDKey is the context key for anonymous session IDs
	SessionIDKey contextKey = "session_id"

	identityKey contextKey = "identity"
)

// Identity collects the actor ids attached to a request by inner handlers, so
// an outer middleware can report them once the handler returns.
type Identity struct {
	mu        sync.Mutex
	userID    int64
	sessionID string
}

// WithIdentity attaches an empty Identity to ctx.
func WithIdentity(ctx context.Context) (context.Context, *Identity) {
	id := &Identity{}
	return context.WithValue(ctx, identityKey, id), id
}

// UserID returns the recorded user id, zero when anonymous.
func (i *Identity) UserID() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.userID
}

// SessionID returns the recorded session id.
func (i *Identity) SessionID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sessionID
}

func identity(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// Config holds logging configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// New creates a zerolog logger with the given configuration
func New(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "text" {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetGlobalLogger installs logger as the package-level zerolog logger
func SetGlobalLogger(logger zerolog.Logger) {
	log.Logger = logger
}

// WithRequestID stores the request id on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID int64) context.Context {
	if id := identity(ctx); id != nil {
		id.mu.Lock()
		id.userID = userID
		id.mu.Unlock()
	}
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithSessionID stores the session id on ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if id := identity(ctx); id != nil {
		id.mu.Lock()
		id.sessionID = sessionID
		id.mu.Unlock()
	}
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// RequestID returns the request id stored on ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// SessionID returns the session id stored on ctx, if any.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// WithContext returns a logger with context values from the global logger
func WithContext(ctx context.Context) *zerolog.Logger {
	logger := log.With()

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.Str("request_id", requestID)
	}

	if userID, ok := ctx.Value(UserIDKey).(int64); ok && userID != 0 {
		logger = logger.Int64("user_id", userID)
	}

	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		logger = logger.Str("session_id", sessionID)
	}

	contextLogger := logger.Logger()
	return &contextLogger
}
