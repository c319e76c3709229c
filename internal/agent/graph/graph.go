package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/graph/conversations"
	"github.com/hrassist/server/internal/agent/graph/nodes"
	"github.com/hrassist/server/internal/agent/graph/observers"
	"github.com/hrassist/server/internal/agent/graph/tools"
	"github.com/hrassist/server/internal/agent/model"
	errx "github.com/hrassist/server/internal/core/error"
	logx "github.com/hrassist/server/pkg/logger"
)

// Config holds everything needed to run HR assistant turns end-to-end.
type Config struct {
	ChatModels   *nodes.ChatModels
	HR           model.HRRepository
	Checkpoints  model.CheckpointStore
	Conversation model.ConversationConfig
	Prompt       model.PromptConfig
	// Handlers receive graph, model, tool and prompt callbacks. Nil means the
	// default logging observers.
	Handlers []callbacks.Handler
}

// GraphConfig holds all configuration needed to build the graph.
type GraphConfig struct {
	ChatModels        *nodes.ChatModels
	HR                model.HRRepository
	Prompt            model.PromptConfig
	RouterMaxTurns    int
	ToolMaxIterations int
	ToolConcurrency   int
}

// GraphBuilder handles the construction of the HR conversation graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.TurnInput, *model.ConversationState]

	contextInfos []*schema.ToolInfo
	hrInfos      []*schema.ToolInfo
}

// BuildGraph wires the fixed topology:
//
//	route_query -> get_context | hr_node
//	get_context -> context_tools | hr_node
//	context_tools -> get_context
//	hr_node -> hr_tools | end_turn
//	hr_tools -> hr_node
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *model.ConversationState], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Router == nil || config.ChatModels.Agent == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.HR == nil {
		return nil, fmt.Errorf("hr repository is nil")
	}

	b := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *model.ConversationState](
			compose.WithGenLocalState(func(ctx context.Context) *model.ConversationState {
				return model.NewConversationState()
			}),
		),
	}
	if err := b.setupTools(ctx); err != nil {
		return nil, err
	}
	if err := b.addNodes(); err != nil {
		return nil, err
	}
	if err := b.addEdges(); err != nil {
		return nil, err
	}
	if err := b.addBranches(); err != nil {
		return nil, err
	}
	return b.compile(ctx)
}

// setupTools adds one tools node per tool loop and keeps the schemas for
// binding to the models.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	concurrency := b.config.ToolConcurrency
	if concurrency <= 0 {
		concurrency = nodes.DefaultToolConcurrency
	}

	loops := []struct {
		name  string
		tools []tool.BaseTool
		infos *[]*schema.ToolInfo
	}{
		{nodes.NodeContextTools, tools.GetContextTools(b.config.HR), &b.contextInfos},
		{nodes.NodeHRTools, tools.GetHRTools(b.config.HR), &b.hrInfos},
	}
	for _, loop := range loops {
		infos, err := tools.GetToolInfos(ctx, loop.tools)
		if err != nil {
			logx.Error().Err(err).Str("node", loop.name).Msg("Failed to get tool infos")
			return fmt.Errorf("failed to get tool infos: %w", err)
		}
		*loop.infos = infos

		toolsNode, err := tools.NewToolsNode(ctx, loop.tools, concurrency)
		if err != nil {
			logx.Error().Err(err).Str("node", loop.name).Msg("Failed to create tools node")
			return fmt.Errorf("failed to create %s: %w", loop.name, err)
		}
		if err := b.graph.AddToolsNode(loop.name, toolsNode,
			compose.WithNodeName(loop.name),
			compose.WithStatePreHandler(nodes.NewToolsPreHandler(loop.name, b.config.ToolMaxIterations)),
			compose.WithStatePostHandler(nodes.NewToolsPostHandler(loop.name)),
		); err != nil {
			return fmt.Errorf("add %s: %w", loop.name, err)
		}
	}
	return nil
}

// addNodes adds the model nodes and the terminal node.
func (b *GraphBuilder) addNodes() error {
	cms := b.config.ChatModels

	route, err := nodes.NewRouteQueryNode(nodes.RouterConfig{
		ChatModel: cms.Router,
		ModelName: cms.RouterModelName,
		Prompt:    b.config.Prompt,
		MaxTurns:  b.config.RouterMaxTurns,
	})
	if err != nil {
		return err
	}
	getContext, err := nodes.NewGetContextNode(nodes.ContextConfig{
		ChatModel: cms.Agent,
		ModelName: cms.AgentModelName,
		Prompt:    b.config.Prompt,
		ToolInfos: b.contextInfos,
	})
	if err != nil {
		return err
	}
	hr, err := nodes.NewHRNode(nodes.ActionConfig{
		ChatModel: cms.Agent,
		ModelName: cms.AgentModelName,
		Prompt:    b.config.Prompt,
		ToolInfos: b.hrInfos,
	})
	if err != nil {
		return err
	}

	adds := []error{
		b.graph.AddLambdaNode(nodes.NodeRouteQuery, route,
			compose.WithNodeName(nodes.NodeRouteQuery),
			compose.WithStatePreHandler(nodes.NewRouteQueryPreHandler()),
			compose.WithStatePostHandler(nodes.NewRouteQueryPostHandler()),
		),
		b.graph.AddLambdaNode(nodes.NodeGetContext, getContext,
			compose.WithNodeName(nodes.NodeGetContext),
			compose.WithStatePostHandler(nodes.NewGetContextPostHandler(cms.AgentModelName)),
		),
		b.graph.AddLambdaNode(nodes.NodeHR, hr,
			compose.WithNodeName(nodes.NodeHR),
			compose.WithStatePostHandler(nodes.NewHRPostHandler(cms.AgentModelName)),
		),
		b.graph.AddLambdaNode(nodes.NodeEndTurn, nodes.NewEndTurnNode(),
			compose.WithNodeName(nodes.NodeEndTurn),
		),
	}
	return errors.Join(adds...)
}

// addEdges creates the entry, the loop-back edges and the exit.
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeRouteQuery},
		{nodes.NodeContextTools, nodes.NodeGetContext},
		{nodes.NodeHRTools, nodes.NodeHR},
		{nodes.NodeEndTurn, compose.END},
	}
	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	routeBranch := compose.NewGraphBranch(
		nodes.NewRouteCondition(),
		map[string]bool{
			nodes.NodeGetContext: true,
			nodes.NodeHR:         true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRouteQuery, routeBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding route branch")
		return fmt.Errorf("error adding route branch: %w", err)
	}

	contextBranch := compose.NewGraphBranch(
		nodes.NewGetContextCondition(),
		map[string]bool{
			nodes.NodeContextTools: true,
			nodes.NodeHR:           true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeGetContext, contextBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding context branch")
		return fmt.Errorf("error adding context branch: %w", err)
	}

	hrBranch := compose.NewGraphBranch(
		nodes.NewHRCondition(),
		map[string]bool{
			nodes.NodeHRTools: true,
			nodes.NodeEndTurn: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeHR, hrBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding hr branch")
		return fmt.Errorf("error adding hr branch: %w", err)
	}
	return nil
}

// compile finalizes the graph. The step budget admits both tool loops
// running to their cap, so the loop limit error fires before the step limit.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.ConversationState], error) {
	limit := b.config.ToolMaxIterations
	if limit <= 0 {
		limit = nodes.DefaultMaxToolIterations
	}
	maxSteps := max(4*limit+8, 20)

	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName("hr_assistant"),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	logx.Debug().Int("max_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}

// TurnRequest is one inbound user message.
type TurnRequest struct {
	// ThreadID defaults to the caller's employee id.
	ThreadID     string
	Query        string
	DocumentName string
	Identity     model.Identity
}

// TurnResult is the outcome of a committed turn.
type TurnResult struct {
	ThreadID   string
	Answer     string
	Visited    []string
	DocumentID string
	CostUSD    float64
}

// Runner executes turns against the compiled graph, one at a time per thread.
type Runner struct {
	runnable compose.Runnable[model.TurnInput, *model.ConversationState]
	manager  *conversations.Manager
	handlers []callbacks.Handler
}

// NewRunner builds the graph and the per-thread turn manager.
func NewRunner(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	handlers := cfg.Handlers
	if handlers == nil {
		handlers = []callbacks.Handler{observers.NewAllCallbacks()}
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:        cfg.ChatModels,
		HR:                cfg.HR,
		Prompt:            cfg.Prompt,
		RouterMaxTurns:    cfg.Conversation.Router.MaxTurns,
		ToolMaxIterations: cfg.Conversation.Tools.MaxIterations,
		ToolConcurrency:   cfg.Conversation.Tools.Concurrency,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("HR graph built successfully")
	return &Runner{runnable: runnable, manager: conversations.NewManager(cfg.Checkpoints), handlers: handlers}, nil
}

// SubmitTurn runs one turn and checkpoints its final state. A turn that
// fails anywhere leaves the thread's checkpoint exactly as it was.
//
// ctx only bounds the wait for the thread; once the turn holds it, the turn
// runs to completion or failure regardless of cancellation.
func (r *Runner) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	req.Identity.EmployeeID = strings.TrimSpace(req.Identity.EmployeeID)
	if req.Identity.EmployeeID == "" {
		return nil, &errx.IdentityRequiredError{}
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errx.New(errors.New("empty query"), http.StatusBadRequest, "query is required")
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = req.Identity.EmployeeID
	}

	started := time.Now()
	runCtx := logx.WithAuditScope(context.WithoutCancel(ctx), threadID, req.Identity.EmployeeID)
	runCtx = tools.WithCaller(runCtx, req.Identity.EmployeeID)
	logx.Audit(runCtx, logx.AuditRequestReceived, logx.ComponentApp).
		Str("query_hash", logx.HashText(req.Query)).
		Int("query_len", len(req.Query)).
		Str("document_name", req.DocumentName).
		Msg("Request received")

	turn, err := r.manager.Begin(ctx, threadID)
	if err != nil {
		return nil, &errx.ExecutionError{ThreadID: threadID, Err: err}
	}
	defer turn.Release()

	if owner := turn.State.EmployeeID; owner != "" && owner != req.Identity.EmployeeID {
		logx.Warn().
			Str("thread_id", threadID).
			Str("employee_id", req.Identity.EmployeeID).
			Msg("Thread belongs to another employee")
		return nil, errx.New(fmt.Errorf("thread %s is owned by another employee", threadID), http.StatusForbidden, errx.ThreadForbiddenMessage)
	}

	logx.Info().
		Str("thread_id", threadID).
		Str("employee_id", req.Identity.EmployeeID).
		Str("document_name", req.DocumentName).
		Msg("Processing turn")

	trace := newTurnTrace()
	final, err := r.runnable.Invoke(runCtx, model.TurnInput{
		Prior:        turn.State,
		Query:        req.Query,
		DocumentHint: req.DocumentName,
		Identity:     req.Identity,
	}, compose.WithCallbacks(append(append([]callbacks.Handler{}, r.handlers...), trace.handler())...))
	if err != nil {
		node := trace.failedNode()
		var loopErr *errx.ToolLoopLimitError
		if errors.As(err, &loopErr) {
			node = loopErr.Node
		}
		logx.Error().Err(err).Str("thread_id", threadID).Str("node", node).Msg("Turn failed")
		return nil, &errx.ExecutionError{ThreadID: threadID, Node: node, Err: err}
	}

	if err := turn.Commit(runCtx, final); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Checkpoint failed")
		return nil, &errx.ExecutionError{ThreadID: threadID, Err: err}
	}

	answer := ""
	if last := final.LastMessage(); last != nil {
		answer = last.Content
	}
	visited := trace.visitedNodes()
	logx.Info().
		Str("thread_id", threadID).
		Strs("visited", visited).
		Float64("total_cost_usd", final.TotalCostUSD).
		Msg("Turn completed")
	logx.Audit(runCtx, logx.AuditResponseSent, logx.ComponentApp).
		Str("response_type", "final").
		Int("answer_len", len(answer)).
		Str("document_id", final.DocumentID).
		Int64("response_time_ms", time.Since(started).Milliseconds()).
		Msg("Response sent")

	return &TurnResult{
		ThreadID:   threadID,
		Answer:     answer,
		Visited:    visited,
		DocumentID: final.DocumentID,
		CostUSD:    final.TotalCostUSD,
	}, nil
}

// Reset drops a thread's history. It waits for any in-flight turn.
func (r *Runner) Reset(ctx context.Context, threadID string) error {
	if threadID == "" {
		return errx.New(errors.New("empty thread id"), http.StatusBadRequest, "thread id is required")
	}
	return r.manager.Reset(ctx, threadID)
}

// History returns the latest checkpoint of a thread.
func (r *Runner) History(ctx context.Context, threadID string) (*model.ConversationState, error) {
	return r.manager.Snapshot(ctx, threadID)
}
