package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/semaphore"

	"github.com/hrassist/server/internal/agent/model"
	logx "github.com/hrassist/server/pkg/logger"
)

// GetToolInfos returns the schemas of ts, in order, for binding to a model.
func GetToolInfos(ctx context.Context, ts []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// NewToolsNode builds the tools node of one tool loop. The calls of a round
// run in parallel, at most concurrency at a time, and results keep call order.
// It never fails a round: unknown tools, tool errors and panics come back as
// error results the model can read and recover from.
func NewToolsNode(ctx context.Context, ts []tool.BaseTool, concurrency int) (*compose.ToolsNode, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	seen := make(map[string]bool, len(ts))
	guarded := make([]tool.BaseTool, 0, len(ts))
	for _, t := range ts {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info: %w", err)
		}
		it, ok := t.(tool.InvokableTool)
		if !ok {
			return nil, fmt.Errorf("tool %q is not invokable", info.Name)
		}
		if seen[info.Name] {
			return nil, fmt.Errorf("tool %q registered twice", info.Name)
		}
		seen[info.Name] = true
		guarded = append(guarded, &guardedTool{InvokableTool: it, name: info.Name, sem: sem})
	}

	return compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools: guarded,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls (e.g., empty name)
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning error result")
			return errorResult(ctx, fmt.Errorf("unknown tool %q", strings.TrimSpace(name))), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return SanitizeArguments(arguments), nil
		},
	})
}

// guardedTool turns every failure of the wrapped tool into an error result.
type guardedTool struct {
	tool.InvokableTool
	name string
	sem  *semaphore.Weighted
}

func (g *guardedTool) GetType() string {
	return "HRTool"
}

func (g *guardedTool) InvokableRun(ctx context.Context, arguments string, opts ...tool.Option) (out string, err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return errorResult(ctx, err), nil
	}
	defer g.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("tool %q panicked: %v", g.name, r)
			logx.Error().Err(perr).Str("tool_name", g.name).Msg("Tool panic recovered")
			out, err = errorResult(ctx, perr), nil
		}
	}()

	out, err = g.InvokableTool.InvokableRun(ctx, arguments, opts...)
	if err != nil {
		logx.Debug().Err(err).Str("tool_name", g.name).Str("tool_call_id", compose.GetToolCallID(ctx)).Msg("Tool returned error")
		return errorResult(ctx, err), nil
	}
	return out, nil
}

// errorResult renders err as the tool output and flags the call in the turn
// state, so the result message can be marked as an error once it exists.
func errorResult(ctx context.Context, err error) string {
	callID := compose.GetToolCallID(ctx)
	if callID != "" {
		_ = compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			s.MarkToolError(callID)
			return nil
		})
	}
	return model.ToolErrorContent(err)
}

// SanitizeArguments normalizes model-produced arguments on a best-effort
// basis. String values are trimmed and scalars are coerced to strings, since
// every tool parameter is a string; employee ids are upper-cased. Non-JSON
// input is passed through for the tool to reject.
func SanitizeArguments(arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments
	}
	if m == nil {
		m = map[string]any{}
	}

	for k, v := range m {
		switch vv := v.(type) {
		case string:
			m[k] = strings.TrimSpace(vv)
		case float64, bool:
			m[k] = strings.TrimSpace(fmt.Sprint(vv))
		case nil:
			delete(m, k)
		}
	}

	if v, ok := m["employee_id"].(string); ok {
		m["employee_id"] = strings.ToUpper(v)
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}
