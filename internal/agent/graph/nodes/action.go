package nodes

import (
	"context"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/graph/prompts"
	"github.com/hrassist/server/internal/agent/model"
)

type ActionConfig struct {
	ChatModel einomodel.ToolCallingChatModel
	ModelName string
	Prompt    model.PromptConfig
	ToolInfos []*schema.ToolInfo
}

type hrNode struct {
	m      *boundModel
	prompt model.PromptConfig
}

func newHRNode(cfg ActionConfig) (*hrNode, error) {
	m, err := bindModel(cfg.ChatModel, NodeHR, cfg.ModelName, cfg.ToolInfos)
	if err != nil {
		return nil, err
	}
	return &hrNode{m: m, prompt: cfg.Prompt}, nil
}

// NewHRNode answers the user with the full tool collection bound. Its plain
// answer ends the turn.
func NewHRNode(cfg ActionConfig) (*compose.Lambda, error) {
	n, err := newHRNode(cfg)
	if err != nil {
		return nil, err
	}
	return compose.InvokableLambda(func(ctx context.Context, _ any) (*schema.Message, error) {
		s, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return n.run(ctx, s)
	}), nil
}

func (n *hrNode) run(ctx context.Context, s *model.ConversationState) (*schema.Message, error) {
	system, err := prompts.RenderExecutionSystem(n.m.promptCtx(ctx), n.prompt)
	if err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(s.Messages)+2)
	msgs = append(msgs,
		schema.SystemMessage(system),
		schema.UserMessage(prompts.ExecutionHuman(s)),
	)
	msgs = append(msgs, s.Messages...)
	return n.m.generate(ctx, msgs)
}

// NewHRPostHandler appends the action model output to the state.
func NewHRPostHandler(modelName string) func(context.Context, *schema.Message, *model.ConversationState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, s *model.ConversationState) (*schema.Message, error) {
		s.Apply(recordModelOutput(ctx, NodeHR, modelName, out, s))
		return out, nil
	}
}

// NewHRCondition loops into hr_tools while the model requests tools and ends
// the turn on a plain answer.
func NewHRCondition() func(context.Context, *schema.Message) (string, error) {
	return toolsOr(NodeHRTools, NodeEndTurn)
}

// NewEndTurnNode emits the final state of the turn as the graph output.
func NewEndTurnNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (*model.ConversationState, error) {
		return snapshot(ctx)
	})
}
