package account

import (
	"context"
	"time"
)

// Audit event names.
const (
	EventRegister    = "register"
	EventLoginOK     = "login_ok"
	EventLoginFailed = "login_failed"
	EventRehash      = "rehash"
	EventPasswordSet = "password_changed"
	EventEmailSet    = "email_changed"
)

// AuditEvent is one credential-related fact. Identifier is the raw login
// identifier; Auditor implementations must not persist it verbatim.
type AuditEvent struct {
	Event      string
	UserID     string
	Identifier string
	Reason     string
	Client     ClientInfo
	At         time.Time
}

// Auditor records AuditEvents. Implementations must not block the caller for long
// and must swallow their own failures.
type Auditor interface {
	Record(ctx context.Context, ev AuditEvent)
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, AuditEvent) {}

// ClientInfo describes the caller as seen by the transport.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type clientCtxKey struct{}

// ContextWithClient attaches transport-level caller info for audit records.
func ContextWithClient(ctx context.Context, c ClientInfo) context.Context {
	return context.WithValue(ctx, clientCtxKey{}, c)
}

// ClientFromContext returns the caller info attached by ContextWithClient.
func ClientFromContext(ctx context.Context) ClientInfo {
	c, _ := ctx.Value(clientCtxKey{}).(ClientInfo)
	return c
}
