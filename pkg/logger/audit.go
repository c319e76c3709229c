package logx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Audit event names.
const (
	AuditRequestReceived  = "request_received"
	AuditDocumentAccessed = "document_accessed"
	AuditToolError        = "tool_error"
	AuditResponseSent     = "response_sent"
)

// Audit components.
const (
	ComponentApp  = "app"
	ComponentNode = "node"
	ComponentTool = "tool"
)

var auditLogger atomic.Pointer[zerolog.Logger]

func init() {
	SetAuditOutput(os.Stdout)
}

// SetAuditOutput sends audit events to w as JSON lines, apart from the
// application log. Audit events are never filtered by level.
func SetAuditOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger().Level(zerolog.TraceLevel)
	auditLogger.Store(&l)
}

type auditScopeKey struct{}

type auditScope struct {
	threadID string
	actor    string
}

// WithAuditScope tags ctx with the thread and the acting employee, so every
// audit event emitted under it can be correlated.
func WithAuditScope(ctx context.Context, threadID, actor string) context.Context {
	return context.WithValue(ctx, auditScopeKey{}, auditScope{threadID: threadID, actor: actor})
}

// ThreadID returns the thread of the audit scope of ctx, or "".
func ThreadID(ctx context.Context) string {
	s, _ := ctx.Value(auditScopeKey{}).(auditScope)
	return s.threadID
}

// Actor returns the acting employee of the audit scope of ctx, or "".
func Actor(ctx context.Context) string {
	s, _ := ctx.Value(auditScopeKey{}).(auditScope)
	return s.actor
}

// Audit starts an audit event carrying the scope of ctx. The caller adds
// event data and sends it with Msg.
func Audit(ctx context.Context, event, component string) *zerolog.Event {
	s, _ := ctx.Value(auditScopeKey{}).(auditScope)
	return auditLogger.Load().Info().
		Str("event", event).
		Str("component", component).
		Str("thread_id", s.threadID).
		Str("actor", s.actor)
}

// HashText returns the hex SHA-256 of text, for auditing user input without
// storing it.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
