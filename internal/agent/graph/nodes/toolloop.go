package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/model"
	errx "github.com/hrassist/server/internal/core/error"
	logx "github.com/hrassist/server/pkg/logger"
)

// NewToolsPreHandler counts one tool round of the named loop. Running more
// than maxIterations rounds in one turn aborts the turn.
func NewToolsPreHandler(name string, maxIterations int) func(context.Context, *schema.Message, *model.ConversationState) (*schema.Message, error) {
	limit := normalizeMaxIterations(maxIterations)
	return func(ctx context.Context, in *schema.Message, s *model.ConversationState) (*schema.Message, error) {
		if !model.HasToolCalls(in) {
			return nil, fmt.Errorf("no pending tool calls")
		}

		rounds := s.ToolRounds[name]
		logx.Debug().
			Str("thread_id", threadID(ctx)).
			Str("node", name).
			Int("tool_round", rounds+1).
			Int("tool_count", len(in.ToolCalls)).
			Msg("Tool execution attempt")
		if rounds >= limit {
			logx.Warn().
				Str("thread_id", threadID(ctx)).
				Str("node", name).
				Int("max_tool_iterations", limit).
				Msg("Tool loop limit exceeded")
			return nil, &errx.ToolLoopLimitError{Node: name, Limit: limit}
		}
		s.Apply(model.StateUpdate{ToolRound: name})
		return in, nil
	}
}

// NewToolsPostHandler appends the results of a round, one per call in call
// order, and flags the ones that report a failure.
func NewToolsPostHandler(name string) func(context.Context, []*schema.Message, *model.ConversationState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, s *model.ConversationState) ([]*schema.Message, error) {
		for _, msg := range out {
			if msg == nil || !s.ToolErrors[msg.ToolCallID] {
				continue
			}
			model.FlagToolError(msg)
			logx.Debug().Str("thread_id", threadID(ctx)).Str("node", name).Msg(model.DescribeMessage(msg))
			logx.Audit(ctx, logx.AuditToolError, logx.ComponentTool).
				Str("node", name).
				Str("tool_name", msg.ToolName).
				Str("tool_call_id", msg.ToolCallID).
				Str("error_message", msg.Content).
				Msg("Tool error")
		}
		s.Apply(model.StateUpdate{Messages: out})
		return out, nil
	}
}
