package nodes

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/graph/conversations"
	"github.com/hrassist/server/internal/agent/graph/parsers"
	"github.com/hrassist/server/internal/agent/graph/prompts"
	"github.com/hrassist/server/internal/agent/model"
	logx "github.com/hrassist/server/pkg/logger"
)

type RouterConfig struct {
	ChatModel einomodel.ToolCallingChatModel
	ModelName string
	Prompt    model.PromptConfig
	// MaxTurns bounds how many earlier messages the router sees.
	MaxTurns int
}

type routeNode struct {
	m        *boundModel
	prompt   model.PromptConfig
	maxTurns int
}

func newRouteNode(cfg RouterConfig) (*routeNode, error) {
	m, err := bindModel(cfg.ChatModel, NodeRouteQuery, cfg.ModelName, []*schema.ToolInfo{parsers.RouteDecisionToolInfo()})
	if err != nil {
		return nil, err
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultRouterMaxTurns
	}
	return &routeNode{m: m, prompt: cfg.Prompt, maxTurns: maxTurns}, nil
}

// NewRouteQueryPreHandler seeds the graph state from the thread's checkpoint
// and opens the turn.
func NewRouteQueryPreHandler() func(context.Context, model.TurnInput, *model.ConversationState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.ConversationState) (model.TurnInput, error) {
		if in.Prior != nil {
			*s = *in.Prior.Clone()
		}
		if s.Messages == nil {
			s.Messages = []*schema.Message{}
		}
		s.BeginTurn(in.Query, strings.TrimSpace(in.DocumentHint), in.Identity)
		return in, nil
	}
}

// NewRouteQueryNode classifies the current query with one structured model
// call. It never runs tools; the route_decision tool only carries the schema.
func NewRouteQueryNode(cfg RouterConfig) (*compose.Lambda, error) {
	n, err := newRouteNode(cfg)
	if err != nil {
		return nil, err
	}
	return compose.InvokableLambda(func(ctx context.Context, _ model.TurnInput) (model.StateUpdate, error) {
		s, err := snapshot(ctx)
		if err != nil {
			return model.StateUpdate{}, err
		}
		return n.run(ctx, s)
	}), nil
}

func (n *routeNode) run(ctx context.Context, s *model.ConversationState) (model.StateUpdate, error) {
	system, err := prompts.RenderRouteSystem(n.m.promptCtx(ctx), n.prompt)
	if err != nil {
		return model.StateUpdate{}, err
	}
	recent := conversations.TrimTail(priorMessages(s.Messages), n.maxTurns)
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompts.RouteHuman(s.UserQuery, s.DocumentName, recent)),
	}

	out, err := n.m.generate(ctx, msgs)
	if err != nil {
		return model.StateUpdate{}, err
	}
	cost := usageCost(threadID(ctx), NodeRouteQuery, n.m.modelName, out)
	decision, err := parsers.ParseRouteDecision(out)
	if err != nil {
		logx.Warn().Err(err).Str("thread_id", threadID(ctx)).Msg("Routing output rejected")
		return model.StateUpdate{}, err
	}

	documentName := decision.DocumentName
	if documentName == "" {
		documentName = s.DocumentName
	}
	logx.Debug().
		Str("thread_id", threadID(ctx)).
		Bool("rag", decision.RAG).
		Str("document_name", documentName).
		Str("rag_query", decision.RAGQuery).
		Str("agent_query", decision.AgentQuery).
		Msg("Routing decision")

	summary := strings.TrimRight(fmt.Sprintf("RAG: %t, Document: %s", decision.RAG, documentName), " ")
	return model.StateUpdate{
		Messages:     []*schema.Message{schema.AssistantMessage(summary, nil)},
		UserQuery:    &s.UserQuery,
		RAGNeeded:    &decision.RAG,
		DocumentName: &documentName,
		RAGQuery:     &decision.RAGQuery,
		AgentQuery:   &decision.AgentQuery,
		CostUSD:      cost,
	}, nil
}

// NewRouteQueryPostHandler merges the routing decision into the state.
func NewRouteQueryPostHandler() func(context.Context, model.StateUpdate, *model.ConversationState) (model.StateUpdate, error) {
	return func(ctx context.Context, u model.StateUpdate, s *model.ConversationState) (model.StateUpdate, error) {
		s.Apply(u)
		return u, nil
	}
}

// NewRouteCondition sends document questions to context retrieval and
// everything else straight to the action node.
func NewRouteCondition() func(context.Context, model.StateUpdate) (string, error) {
	return func(ctx context.Context, u model.StateUpdate) (string, error) {
		if u.RAGNeeded != nil && *u.RAGNeeded {
			return NodeGetContext, nil
		}
		return NodeHR, nil
	}
}
