// Package stubmodel provides a scripted chat model for exercising graphs
// without a provider.
package stubmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Reply produces the answer to one Generate call.
type Reply func(in []*schema.Message) (*schema.Message, error)

// Model replays its script one reply per Generate call and records what it
// was sent. WithTools records the bound tools and shares the script, so one
// Model can back several nodes.
type Model struct {
	mu     sync.Mutex
	script []Reply
	calls  [][]*schema.Message
	bound  [][]string
}

func New(script ...Reply) *Model {
	return &Model{script: script}
}

func (m *Model) Generate(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, in)
	if len(m.script) == 0 {
		return nil, fmt.Errorf("stub model: unexpected call %d", len(m.calls))
	}
	next := m.script[0]
	m.script = m.script[1:]
	return next(in)
}

func (m *Model) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stub model: streaming not supported")
}

func (m *Model) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	m.mu.Lock()
	m.bound = append(m.bound, names)
	m.mu.Unlock()
	return m, nil
}

// Calls returns the inputs of every Generate call so far.
func (m *Model) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.calls...)
}

// Bound returns the tool names of every WithTools call, in order.
func (m *Model) Bound() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.bound...)
}

// Remaining reports how many scripted replies are unused.
func (m *Model) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

// Answer replies with plain assistant text.
func Answer(text string) Reply {
	return func([]*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(text, nil), nil
	}
}

// CallTools replies with a tool request.
func CallTools(calls ...schema.ToolCall) Reply {
	return func([]*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("", append([]schema.ToolCall(nil), calls...)), nil
	}
}

// Route replies with a route_decision tool call carrying args as JSON.
func Route(args string) Reply {
	return CallTools(Call("route_1", "route_decision", args))
}

// Fail replies with err.
func Fail(err error) Reply {
	return func([]*schema.Message) (*schema.Message, error) {
		return nil, err
	}
}

// WithUsage wraps r so its answer reports token usage.
func WithUsage(r Reply, prompt, completion int) Reply {
	return func(in []*schema.Message) (*schema.Message, error) {
		out, err := r(in)
		if err != nil || out == nil {
			return out, err
		}
		out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}}
		return out, nil
	}
}

// Call builds a tool call.
func Call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}
