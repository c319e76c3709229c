package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/hrassist/server/internal/agent/model"
	logx "github.com/hrassist/server/pkg/logger"
)

// boundModel is a chat model with its node's tools already bound.
type boundModel struct {
	node      string
	modelName string
	cm        einomodel.ToolCallingChatModel
}

func bindModel(cm einomodel.ToolCallingChatModel, node, modelName string, infos []*schema.ToolInfo) (*boundModel, error) {
	if cm == nil {
		return nil, fmt.Errorf("%s: chat model is nil", node)
	}
	bound, err := cm.WithTools(infos)
	if err != nil {
		logx.Error().Err(err).Str("node", node).Msg("Failed to bind tools")
		return nil, fmt.Errorf("%s: bind tools: %w", node, err)
	}
	return &boundModel{node: node, modelName: modelName, cm: bound}, nil
}

// promptCtx reuses the run's handlers so prompt rendering reports callbacks.
func (b *boundModel) promptCtx(ctx context.Context) context.Context {
	return callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      b.node,
		Type:      "SystemPrompt",
		Component: components.ComponentOfPrompt,
	})
}

// generate calls the model once. Callbacks go to the run's handlers and fire
// here for models that do not report them on their own.
func (b *boundModel) generate(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      b.node,
		Type:      b.modelName,
		Component: components.ComponentOfChatModel,
	})

	selfReporting := components.IsCallbacksEnabled(b.cm)
	if !selfReporting {
		ctx = callbacks.OnStart(ctx, &einomodel.CallbackInput{Messages: msgs})
	}

	out, err := b.cm.Generate(ctx, msgs)
	if err != nil {
		if !selfReporting {
			callbacks.OnError(ctx, err)
		}
		return nil, fmt.Errorf("generate: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("generate: model returned no message")
	}
	if !selfReporting {
		callbacks.OnEnd(ctx, &einomodel.CallbackOutput{Message: out})
	}
	return out, nil
}

// usageCost computes and logs the USD cost of one model call.
func usageCost(threadID, node, modelName string, out *schema.Message) float64 {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return 0
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	logx.Debug().
		Str("thread_id", threadID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
	return totalC
}

// recordModelOutput makes the tool call ids of out unique within the thread
// and returns the update that appends out and books its cost.
func recordModelOutput(ctx context.Context, node, modelName string, out *schema.Message, s *model.ConversationState) model.StateUpdate {
	model.UniqueToolCallIDs(out, s.Messages, newCallID)
	if model.HasToolCalls(out) {
		logx.Debug().Str("thread_id", threadID(ctx)).Str("node", node).Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
	} else {
		logx.Debug().Str("thread_id", threadID(ctx)).Str("node", node).Int("answer_len", len(out.Content)).Msg("Answer ready")
	}
	return model.StateUpdate{
		Messages: []*schema.Message{out},
		CostUSD:  usageCost(threadID(ctx), node, modelName, out),
	}
}

// snapshot copies the graph state, so a node body can read it without
// holding the state lock.
func snapshot(ctx context.Context) (*model.ConversationState, error) {
	var s *model.ConversationState
	err := compose.ProcessState(ctx, func(_ context.Context, state *model.ConversationState) error {
		s = state.Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access state: %w", err)
	}
	return s, nil
}

func newCallID() string {
	return "call_" + uuid.NewString()
}

func threadID(ctx context.Context) string {
	return logx.ThreadID(ctx)
}
