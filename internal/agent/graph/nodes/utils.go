package nodes

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/graph/tools"
	"github.com/hrassist/server/internal/agent/model"
)

const (
	NodeRouteQuery   = "route_query"
	NodeGetContext   = "get_context"
	NodeContextTools = "context_tools"
	NodeHR           = "hr_node"
	NodeHRTools      = "hr_tools"
	NodeEndTurn      = "end_turn"
)

const (
	DefaultMaxToolIterations = 10
	DefaultToolConcurrency   = 4
	DefaultRouterMaxTurns    = 6
)

// ===== Small helpers to keep nodes simple/readable =====

// normalizeMaxIterations returns a sane default when the provided value is invalid.
func normalizeMaxIterations(n int) int {
	if n <= 0 {
		return DefaultMaxToolIterations
	}
	return n
}

// turnStart is the index of the user message that opened the current turn.
func turnStart(msgs []*schema.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil && msgs[i].Role == schema.User {
			return i
		}
	}
	return 0
}

// priorMessages is the history before the current turn's user message.
func priorMessages(msgs []*schema.Message) []*schema.Message {
	if len(msgs) == 0 {
		return nil
	}
	return msgs[:turnStart(msgs)]
}

// resolvedDocumentID returns the id from the last successful document lookup
// of the current turn, or "" when there was none.
func resolvedDocumentID(msgs []*schema.Message) string {
	id := ""
	for _, msg := range msgs[turnStart(msgs):] {
		if msg == nil || msg.Role != schema.Tool || msg.ToolName != tools.ToolGetDocumentContext || model.IsToolError(msg) {
			continue
		}
		var out tools.GetDocumentContextOutput
		if err := json.Unmarshal([]byte(msg.Content), &out); err == nil && out.DocumentID != "" {
			id = out.DocumentID
		}
	}
	return id
}
