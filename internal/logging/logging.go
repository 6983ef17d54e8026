// Package logging provides the structured logger shared by the service layer.
//
// Every entry carries the service name and, when present in the context, the
// request trace id and authenticated user id.
package logging

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

// Context keys used to carry request-scoped values.
const (
	TraceIDKey contextKey = "trace_id"
	UserIDKey  contextKey = "user_id"
	RoleKey    contextKey = "role"
)

// Logger wraps a logrus logger with service-level fields.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a logger for the named service. Unknown levels fall back to
// info; format is either "json" or "text".
func New(service, level, format string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "console":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: base, service: service}
}

// NewDefault returns an info-level JSON logger.
func NewDefault(service string) *Logger {
	return New(service, "info", "json")
}

// Discard returns a logger that drops every entry. Useful in tests.
func Discard() *Logger {
	l := New("discard", "panic", "json")
	l.SetOutput(io.Discard)
	return l
}

// Service returns the service name attached to every entry.
func (l *Logger) Service() string {
	return l.service
}

func (l *Logger) entry() *logrus.Entry {
	return l.Logger.WithField("service", l.service)
}

// WithContext returns an entry enriched with trace and user ids from ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	e := l.entry()
	if ctx == nil {
		return e
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		e = e.WithField("trace_id", traceID)
	}
	if userID := GetUserID(ctx); userID != "" {
		e = e.WithField("user_id", userID)
	}
	return e.WithContext(ctx)
}

// WithFields returns an entry with the service field and the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.entry().WithFields(fields)
}

// WithField returns an entry with the service field and one extra field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithError returns an entry carrying err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

// LogRequest records one served HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	e := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": status,
		"duration":    formatSeconds(duration),
		"request_id":  GetTraceID(ctx),
	})
	switch {
	case status >= 500:
		e.Error("http_request")
	case status >= 400:
		e.Warn("http_request")
	default:
		e.Info("http_request")
	}
}

// LogSecurityEvent records an auth or abuse related event.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, details map[string]interface{}) {
	l.WithContext(ctx).WithField("security_event", event).WithFields(details).Warn("security_event")
}

// TracePerformance starts a timer and returns the function that logs the
// elapsed time under "performance_trace". Call it with defer.
func (l *Logger) TracePerformance(ctx context.Context, name string) func() {
	start := time.Now()
	return func() {
		l.WithContext(ctx).WithFields(logrus.Fields{
			"func_name": name,
			"duration":  formatSeconds(time.Since(start)),
		}).Info("performance_trace")
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 4, 64) + "s"
}

// NewTraceID returns a fresh request id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores a trace id in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id stored in ctx, if any.
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the authenticated user id stored in ctx, if any.
func GetUserID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// WithRole stores the authenticated role in ctx.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// GetRole returns the authenticated role stored in ctx, if any.
func GetRole(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(RoleKey).(string); ok {
		return v
	}
	return ""
}
