package graph

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"github.com/hrassist/server/internal/agent/graph/nodes"
)

// turnTrace records which graph nodes one turn ran, in order, and the first
// node that failed.
type turnTrace struct {
	mu      sync.Mutex
	visited []string
	failed  string
}

func newTurnTrace() *turnTrace {
	return &turnTrace{}
}

// isGraphNode filters out the callbacks of components nested in a node, such
// as the chat model or the individual tools.
func isGraphNode(info *callbacks.RunInfo) bool {
	if info == nil || info.Name == "" {
		return false
	}
	return info.Component == compose.ComponentOfLambda || info.Component == compose.ComponentOfToolsNode
}

func (t *turnTrace) handler() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			if isGraphNode(info) && info.Name != nodes.NodeEndTurn {
				t.mu.Lock()
				t.visited = append(t.visited, info.Name)
				t.mu.Unlock()
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			if isGraphNode(info) {
				t.mu.Lock()
				if t.failed == "" {
					t.failed = info.Name
				}
				t.mu.Unlock()
			}
			return ctx
		}).
		Build()
}

func (t *turnTrace) visitedNodes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.visited...)
}

func (t *turnTrace) failedNode() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}
