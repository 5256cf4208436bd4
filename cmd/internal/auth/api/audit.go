package authapi

import (
	"context"
	"log/slog"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"waypoint/cmd/internal/auth/account"
	"waypoint/cmd/security/token"
)

// Execer is the subset of pgxpool.Pool used for audit inserts.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGAuditor writes audit events into <schema>.audit_log.
// Identifiers are stored as keyed fingerprints, never raw.
type PGAuditor struct {
	log   *slog.Logger
	db    Execer
	table string
	key   []byte
}

var _ account.Auditor = (*PGAuditor)(nil)

// NewPGAuditor builds an auditor writing to schema.audit_log.
func NewPGAuditor(log *slog.Logger, db Execer, schema string, key []byte) *PGAuditor {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(schema) == "" {
		schema = "waypoint"
	}
	return &PGAuditor{
		log:   log,
		db:    db,
		table: pgx.Identifier{schema, "audit_log"}.Sanitize(),
		key:   append([]byte(nil), key...),
	}
}

// Record inserts ev. Failures are logged, never returned.
func (a *PGAuditor) Record(ctx context.Context, ev account.AuditEvent) {
	if a == nil || a.db == nil || strings.TrimSpace(ev.Event) == "" {
		return
	}

	_, err := a.db.Exec(ctx, `
		INSERT INTO `+a.table+` (
			event, user_id, identifier_fp, reason, ip, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		ev.Event,
		nilIfEmpty(ev.UserID),
		a.fingerprint(ev.Identifier),
		nilIfEmpty(ev.Reason),
		ipOrNil(ev.Client.IP),
		nilIfEmpty(ev.Client.UserAgent),
		ev.At,
	)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "event", ev.Event)
	}
}

func (a *PGAuditor) fingerprint(identifier string) any {
	if strings.TrimSpace(identifier) == "" {
		return nil
	}
	return token.Fingerprint(identifier, a.key)
}

// LogAuditor emits audit events as structured "audit" log lines.
type LogAuditor struct {
	log *slog.Logger
	key []byte
}

var _ account.Auditor = (*LogAuditor)(nil)

// NewLogAuditor is used when no database is configured.
func NewLogAuditor(log *slog.Logger, key []byte) *LogAuditor {
	if log == nil {
		log = slog.Default()
	}
	return &LogAuditor{log: log, key: append([]byte(nil), key...)}
}

func (a *LogAuditor) Record(ctx context.Context, ev account.AuditEvent) {
	attrs := []any{"event", ev.Event}
	if ev.UserID != "" {
		attrs = append(attrs, "user_id", ev.UserID)
	}
	if strings.TrimSpace(ev.Identifier) != "" {
		attrs = append(attrs, "identifier_fp", token.Fingerprint(ev.Identifier, a.key))
	}
	if ev.Reason != "" {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.Client.IP != "" {
		attrs = append(attrs, "ip", ev.Client.IP)
	}
	a.log.InfoContext(ctx, "audit", attrs...)
}

func nilIfEmpty(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}

func ipOrNil(s string) any {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil
	}
	return ip.String()
}
