package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextSubjectKey ctxKey = "subject"
	ContextRemoteIP   ctxKey = "remoteIP"
)

// SubjectFromContext returns the admin token subject set by the auth middleware.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sub, ok := ctx.Value(ContextSubjectKey).(string); ok {
		return sub
	}
	return ""
}

func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextSubjectKey, subject)
}

func RemoteIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if ip, ok := ctx.Value(ContextRemoteIP).(string); ok {
		return ip
	}
	return ""
}

func ContextWithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextRemoteIP, ip)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
