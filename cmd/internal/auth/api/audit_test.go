package authapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waypoint/cmd/internal/auth/account"
	"waypoint/cmd/security/token"
)

type captureExec struct {
	sql  string
	args []any
	err  error
}

func (c *captureExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql = sql
	c.args = args
	return pgconn.CommandTag{}, c.err
}

func TestPGAuditor_Record(t *testing.T) {
	db := &captureExec{}
	key := []byte("audit-key")
	a := NewPGAuditor(discardLogger(), db, "waypoint", key)

	a.Record(context.Background(), account.AuditEvent{
		Event:      account.EventLoginFailed,
		Identifier: "Alice@Example.com",
		Reason:     "bad_password",
		Client:     account.ClientInfo{IP: "203.0.113.5", UserAgent: "curl/8"},
		At:         testNow,
	})

	assert.Contains(t, db.sql, `"waypoint"."audit_log"`)
	require.Len(t, db.args, 7)
	assert.Equal(t, account.EventLoginFailed, db.args[0])
	assert.Nil(t, db.args[1])
	assert.Equal(t, token.Fingerprint("alice@example.com", key), db.args[2])
	assert.Equal(t, "bad_password", db.args[3])
	assert.Equal(t, "203.0.113.5", db.args[4])
	assert.Equal(t, "curl/8", db.args[5])
	assert.Equal(t, testNow, db.args[6])

	for _, arg := range db.args {
		if s, ok := arg.(string); ok {
			assert.NotContains(t, strings.ToLower(s), "alice@example.com")
		}
	}
}

func TestPGAuditor_SwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	db := &captureExec{err: errors.New("relation does not exist")}

	NewPGAuditor(log, db, "", nil).Record(context.Background(), account.AuditEvent{Event: account.EventRegister, At: testNow})

	assert.Contains(t, db.sql, `"waypoint"."audit_log"`)
	assert.Contains(t, buf.String(), "auth.audit.insert.fail")
}

func TestLogAuditor_NeverLogsRawIdentifier(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	NewLogAuditor(log, []byte("k")).Record(context.Background(), account.AuditEvent{
		Event:      account.EventLoginOK,
		UserID:     "01HZX3J6Q8S8P8M5W1N0T7YB2C",
		Identifier: "alice",
		At:         testNow,
	})

	out := buf.String()
	assert.Contains(t, out, `"msg":"audit"`)
	assert.Contains(t, out, `"event":"login_ok"`)
	assert.Contains(t, out, token.Fingerprint("alice", []byte("k")))
	assert.NotContains(t, out, `"alice"`)
}
