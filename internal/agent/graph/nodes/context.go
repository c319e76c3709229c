package nodes

import (
	"context"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/graph/prompts"
	"github.com/hrassist/server/internal/agent/model"
	logx "github.com/hrassist/server/pkg/logger"
)

type ContextConfig struct {
	ChatModel einomodel.ToolCallingChatModel
	ModelName string
	Prompt    model.PromptConfig
	// ToolInfos must describe get_document_context and nothing else.
	ToolInfos []*schema.ToolInfo
}

type contextNode struct {
	m      *boundModel
	prompt model.PromptConfig
}

func newContextNode(cfg ContextConfig) (*contextNode, error) {
	m, err := bindModel(cfg.ChatModel, NodeGetContext, cfg.ModelName, cfg.ToolInfos)
	if err != nil {
		return nil, err
	}
	return &contextNode{m: m, prompt: cfg.Prompt}, nil
}

// NewGetContextNode asks the model to fetch the requested document. A tool
// request loops through context_tools; a plain answer becomes the turn's
// formatted context.
func NewGetContextNode(cfg ContextConfig) (*compose.Lambda, error) {
	n, err := newContextNode(cfg)
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

func (n *contextNode) run(ctx context.Context, s *model.ConversationState) (*schema.Message, error) {
	system, err := prompts.RenderContextSystem(n.m.promptCtx(ctx), n.prompt)
	if err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(s.Messages)+2)
	msgs = append(msgs,
		schema.SystemMessage(system),
		schema.UserMessage(prompts.ContextHuman(s.DocumentName, s.EmployeeID, s.RAGQuery)),
	)
	msgs = append(msgs, s.Messages...)
	return n.m.generate(ctx, msgs)
}

// NewGetContextPostHandler appends the model output. A plain answer is the
// context; the document id comes from this turn's tool results.
func NewGetContextPostHandler(modelName string) func(context.Context, *schema.Message, *model.ConversationState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, s *model.ConversationState) (*schema.Message, error) {
		u := recordModelOutput(ctx, NodeGetContext, modelName, out, s)
		if !model.HasToolCalls(out) {
			documentID := resolvedDocumentID(s.Messages)
			u.FormattedContext = &out.Content
			u.DocumentID = &documentID
			logx.Debug().
				Str("thread_id", threadID(ctx)).
				Str("document_id", documentID).
				Int("context_len", len(out.Content)).
				Msg("Document context ready")
		}
		s.Apply(u)
		return out, nil
	}
}

// NewGetContextCondition loops into context_tools while the model requests
// tools and hands over to the action node once it answers.
func NewGetContextCondition() func(context.Context, *schema.Message) (string, error) {
	return toolsOr(NodeContextTools, NodeHR)
}

// toolsOr routes to toolsNode when the model output is a tool request.
func toolsOr(toolsNode, next string) func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, out *schema.Message) (string, error) {
		if model.HasToolCalls(out) {
			return toolsNode, nil
		}
		return next, nil
	}
}
