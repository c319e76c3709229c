package graph

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrassist/server/internal/agent/graph/nodes"
	"github.com/hrassist/server/internal/agent/graph/stubmodel"
	"github.com/hrassist/server/internal/agent/graph/tools"
	"github.com/hrassist/server/internal/agent/model"
	"github.com/hrassist/server/internal/agent/repo"
	errx "github.com/hrassist/server/internal/core/error"
	logx "github.com/hrassist/server/pkg/logger"
)

const offerLetterID = "0d8e6a4c-2b1f-4e3d-9c5a-7b6e8f9a0c11"

var ava = model.Identity{EmployeeID: "EMP001", EmployeeName: "Ava Patel", JobTitle: "Software Engineer"}

type fixture struct {
	runner *Runner
	store  *repo.MemoryCheckpointStore
	router *stubmodel.Model
	agent  *stubmodel.Model
}

func newFixture(t *testing.T, router, agent []stubmodel.Reply, opts ...func(*Config)) *fixture {
	t.Helper()
	ctx := context.Background()
	hr, err := repo.NewSQLiteHRRepository(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = hr.Close() })
	require.NoError(t, hr.Seed(ctx))

	f := &fixture{
		store:  repo.NewMemoryCheckpointStore(),
		router: stubmodel.New(router...),
		agent:  stubmodel.New(agent...),
	}
	cfg := Config{
		ChatModels: &nodes.ChatModels{
			Router:          f.router,
			Agent:           f.agent,
			RouterModelName: "gemini-2.5-flash-lite",
			AgentModelName:  "gemini-2.5-flash",
		},
		HR:          hr,
		Checkpoints: f.store,
		Prompt:      model.PromptConfig{CompanyName: "Acme Corp"},
		Handlers:    []callbacks.Handler{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	f.runner, err = NewRunner(ctx, cfg)
	require.NoError(t, err)
	return f
}

func (f *fixture) history(t *testing.T, threadID string) []*schema.Message {
	t.Helper()
	s, err := f.runner.History(context.Background(), threadID)
	require.NoError(t, err)
	return s.Messages
}

func TestSubmitTurn_DirectAnswer(t *testing.T) {
	f := newFixture(t,
		[]stubmodel.Reply{stubmodel.Route(`{"rag":false,"agent_query":"vacation days remaining"}`)},
		[]stubmodel.Reply{stubmodel.Answer("You have 14.5 vacation days left.")},
	)

	res, err := f.runner.SubmitTurn(context.Background(), TurnRequest{
		Query:    "How many vacation days do I have left?",
		Identity: ava,
	})
	require.NoError(t, err)
	assert.Equal(t, "EMP001", res.ThreadID)
	assert.Equal(t, []string{nodes.NodeRouteQuery, nodes.NodeHR}, res.Visited)
	assert.Equal(t, "You have 14.5 vacation days left.", res.Answer)

	msgs := f.history(t, "EMP001")
	require.Len(t, msgs, 3)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "RAG: false, Document:", msgs[1].Content)
	assert.Equal(t, res.Answer, msgs[2].Content)

	s, err := f.runner.History(context.Background(), "EMP001")
	require.NoError(t, err)
	assert.Equal(t, "Software Engineer", s.JobTitle)
	assert.False(t, s.RAGNeeded)
}

func TestSubmitTurn_DocumentContext(t *testing.T) {
	f := newFixture(t,
		[]stubmodel.Reply{stubmodel.Route(`{"rag":true,"document_name":"Offer Letter","rag_query":"base salary"}`)},
		[]stubmodel.Reply{
			stubmodel.CallTools(stubmodel.Call("", tools.ToolGetDocumentContext, `{"document_name":"Offer Letter"}`)),
			stubmodel.Answer("Offer Letter: base salary of $125,000 per year."),
			stubmodel.Answer("Your offer letter states a base salary of $125,000."),
		},
	)

	res, err := f.runner.SubmitTurn(context.Background(), TurnRequest{
		ThreadID: "t-offer",
		Query:    "What salary does my offer letter state?",
		Identity: ava,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		nodes.NodeRouteQuery, nodes.NodeGetContext, nodes.NodeContextTools, nodes.NodeGetContext, nodes.NodeHR,
	}, res.Visited)
	assert.Equal(t, offerLetterID, res.DocumentID)
	assert.Contains(t, res.Answer, "$125,000")

	msgs := f.history(t, "t-offer")
	require.NoError(t, model.ValidateToolPairing(msgs))
	toolAt, answerAt := -1, len(msgs)-1
	for i, m := range msgs {
		if m.Role == schema.Tool {
			toolAt = i
		}
	}
	require.NotEqual(t, -1, toolAt)
	assert.Less(t, toolAt, answerAt)
	assert.Contains(t, msgs[toolAt].Content, "$125,000")

	// the action node received the retrieved context
	hrCall := f.agent.Calls()[2]
	assert.Contains(t, hrCall[1].Content, "Document Context:\nOffer Letter: base salary of $125,000 per year.")
	assert.Zero(t, f.agent.Remaining())
}

func TestSubmitTurn_ModelFailureKeepsCheckpoint(t *testing.T) {
	boom := errors.New("provider unavailable")
	f := newFixture(t,
		[]stubmodel.Reply{stubmodel.Route(`{"rag":false}`), stubmodel.Route(`{"rag":false}`)},
		[]stubmodel.Reply{stubmodel.Answer("Hello Ava."), stubmodel.Fail(boom)},
	)
	ctx := context.Background()

	_, err := f.runner.SubmitTurn(ctx, TurnRequest{Query: "hi", Identity: ava})
	require.NoError(t, err)
	before := f.history(t, "EMP001")

	_, err = f.runner.SubmitTurn(ctx, TurnRequest{Query: "and my manager?", Identity: ava})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var execErr *errx.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, nodes.NodeHR, execErr.Node)
	assert.Equal(t, "EMP001", execErr.ThreadID)

	assert.Equal(t, before, f.history(t, "EMP001"))
}

func TestSubmitTurn_IdentityRequired(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.runner.SubmitTurn(context.Background(), TurnRequest{Query: "hi", Identity: model.Identity{EmployeeID: "  "}})
	var idErr *errx.IdentityRequiredError
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, http.StatusBadRequest, errx.HTTPStatus(err))
	assert.Empty(t, f.router.Calls())
}

func TestSubmitTurn_SchemaViolation(t *testing.T) {
	f := newFixture(t, []stubmodel.Reply{stubmodel.Answer("I cannot classify that")}, nil)

	_, err := f.runner.SubmitTurn(context.Background(), TurnRequest{Query: "hi", Identity: ava})
	var schemaErr *errx.OutputSchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, http.StatusBadGateway, errx.HTTPStatus(err))
	assert.Empty(t, f.history(t, "EMP001"))
}

func TestSubmitTurn_ToolLoopLimit(t *testing.T) {
	balance := stubmodel.CallTools(stubmodel.Call("", tools.ToolGetTimeOffBalance, `{}`))
	f := newFixture(t,
		[]stubmodel.Reply{stubmodel.Route(`{"rag":false}`)},
		[]stubmodel.Reply{balance, balance},
		func(c *Config) { c.Conversation.Tools.MaxIterations = 1 },
	)

	_, err := f.runner.SubmitTurn(context.Background(), TurnRequest{Query: "balance?", Identity: ava})
	var loopErr *errx.ToolLoopLimitError
	require.True(t, errors.As(err, &loopErr))
	assert.Equal(t, 1, loopErr.Limit)
	var execErr *errx.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, nodes.NodeHRTools, execErr.Node)
	assert.Empty(t, f.history(t, "EMP001"))
}

func TestSubmitTurn_SameThreadSerialized(t *testing.T) {
	const n = 4
	var router, agent []stubmodel.Reply
	for i := 0; i < n; i++ {
		router = append(router, stubmodel.Route(`{"rag":false}`))
		agent = append(agent, stubmodel.Answer("done"))
	}
	f := newFixture(t, router, agent)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.runner.SubmitTurn(context.Background(), TurnRequest{Query: "ping", Identity: ava})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs := f.history(t, "EMP001")
	require.Len(t, msgs, 3*n)
	for i := 0; i < n; i++ {
		assert.Equal(t, schema.User, msgs[3*i].Role)
		assert.Equal(t, "done", msgs[3*i+2].Content)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t,
		[]stubmodel.Reply{stubmodel.Route(`{"rag":false}`)},
		[]stubmodel.Reply{stubmodel.Answer("hello")},
	)
	ctx := context.Background()
	_, err := f.runner.SubmitTurn(ctx, TurnRequest{Query: "hi", Identity: ava})
	require.NoError(t, err)
	require.NotEmpty(t, f.history(t, "EMP001"))

	require.NoError(t, f.runner.Reset(ctx, "EMP001"))
	assert.Empty(t, f.history(t, "EMP001"))
	assert.Equal(t, http.StatusBadRequest, errx.HTTPStatus(f.runner.Reset(ctx, "")))
}

func TestSubmitTurn_BoundedLoopCounts(t *testing.T) {
	const n = 3
	var agent []stubmodel.Reply
	for i := 0; i < n; i++ {
		agent = append(agent, stubmodel.CallTools(stubmodel.Call("", tools.ToolGetTimeOffBalance, `{}`)))
	}
	agent = append(agent, stubmodel.Answer("You have 14.5 days of PTO and 8 sick days."))
	f := newFixture(t, []stubmodel.Reply{stubmodel.Route(`{"rag":false}`)}, agent)

	res, err := f.runner.SubmitTurn(context.Background(), TurnRequest{Query: "What is my vacation balance?", Identity: ava})
	require.NoError(t, err)
	assert.Len(t, f.agent.Calls(), n+1)

	dispatches := 0
	for _, node := range res.Visited {
		if node == nodes.NodeHRTools {
			dispatches++
		}
	}
	assert.Equal(t, n, dispatches)

	results := 0
	for _, m := range f.history(t, "EMP001") {
		if m.Role == schema.Tool {
			results++
			assert.False(t, model.IsToolError(m), m.Content)
		}
	}
	assert.Equal(t, n, results)
}

func TestSubmitTurn_ThreadIsolation(t *testing.T) {
	f := newFixture(t,
		[]stubmodel.Reply{stubmodel.Route(`{"rag":false}`), stubmodel.Route(`{"rag":false}`)},
		[]stubmodel.Reply{stubmodel.Answer("for Ava"), stubmodel.Answer("for Kwame")},
	)
	ctx := context.Background()

	_, err := f.runner.SubmitTurn(ctx, TurnRequest{Query: "hi", Identity: ava})
	require.NoError(t, err)
	before := f.history(t, "EMP001")

	kwame := model.Identity{EmployeeID: "EMP002", EmployeeName: "Kwame Mensah"}
	_, err = f.runner.SubmitTurn(ctx, TurnRequest{Query: "hello", Identity: kwame})
	require.NoError(t, err)

	assert.Equal(t, before, f.history(t, "EMP001"))
	other := f.history(t, "EMP002")
	require.Len(t, other, 3)
	assert.Equal(t, "for Kwame", other[2].Content)
}

func TestSubmitTurn_DuplicateProviderCallIDs(t *testing.T) {
	// Gemini sends the tool name as the id of every call.
	dup := stubmodel.Call(tools.ToolGetTimeOffBalance, tools.ToolGetTimeOffBalance, `{}`)
	f := newFixture(t,
		[]stubmodel.Reply{stubmodel.Route(`{"rag":false}`), stubmodel.Route(`{"rag":false}`)},
		[]stubmodel.Reply{
			stubmodel.CallTools(dup, dup),
			stubmodel.CallTools(dup),
			stubmodel.Answer("You have 14.5 days of PTO."),
			stubmodel.CallTools(dup),
			stubmodel.Answer("Still 14.5 days."),
		},
	)
	ctx := context.Background()

	for _, q := range []string{"balance?", "and now?"} {
		_, err := f.runner.SubmitTurn(ctx, TurnRequest{Query: q, Identity: ava})
		require.NoError(t, err)
	}

	msgs := f.history(t, "EMP001")
	require.NoError(t, model.ValidateToolPairing(msgs))
	seen := map[string]bool{}
	results := 0
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			assert.False(t, seen[tc.ID], "call id %q reused", tc.ID)
			seen[tc.ID] = true
		}
		if m.Role == schema.Tool {
			results++
			assert.True(t, seen[m.ToolCallID])
			assert.False(t, model.IsToolError(m), m.Content)
		}
	}
	assert.Equal(t, 4, results)
}

func TestSubmitTurn_ForeignThreadRejected(t *testing.T) {
	f := newFixture(t,
		[]stubmodel.Reply{stubmodel.Route(`{"rag":false}`), stubmodel.Route(`{"rag":false}`)},
		[]stubmodel.Reply{stubmodel.Answer("Hello Ava."), stubmodel.Answer("Hello Kwame.")},
	)
	ctx := context.Background()
	_, err := f.runner.SubmitTurn(ctx, TurnRequest{Query: "hi", Identity: ava})
	require.NoError(t, err)
	before := f.history(t, "EMP001")

	kwame := model.Identity{EmployeeID: "EMP002", EmployeeName: "Kwame Mensah"}
	_, err = f.runner.SubmitTurn(ctx, TurnRequest{ThreadID: "EMP001", Query: "show me Ava's offer letter", Identity: kwame})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, errx.HTTPStatus(err))
	assert.Len(t, f.router.Calls(), 1, "the foreign turn never reaches the graph")
	assert.Equal(t, before, f.history(t, "EMP001"))

	// a fresh named thread is claimed by its first caller
	_, err = f.runner.SubmitTurn(ctx, TurnRequest{ThreadID: "kwame-notes", Query: "hi", Identity: kwame})
	require.NoError(t, err)
	_, err = f.runner.SubmitTurn(ctx, TurnRequest{ThreadID: "kwame-notes", Query: "hi", Identity: ava})
	assert.Equal(t, http.StatusForbidden, errx.HTTPStatus(err))
	assert.Zero(t, f.router.Remaining())
}

func captureAudit(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logx.SetAuditOutput(&buf)
	t.Cleanup(func() { logx.SetAuditOutput(os.Stdout) })
	return &buf
}

func auditEvents(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var events []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestSubmitTurn_AuditTrail(t *testing.T) {
	buf := captureAudit(t)
	f := newFixture(t,
		[]stubmodel.Reply{stubmodel.Route(`{"rag":true,"document_name":"Offer Letter"}`)},
		[]stubmodel.Reply{
			stubmodel.CallTools(
				stubmodel.Call("c1", tools.ToolGetDocumentContext, `{"document_name":"Offer Letter"}`),
				stubmodel.Call("c2", "lookup_salary_band", `{}`),
			),
			stubmodel.Answer("Offer Letter: base salary of $125,000 per year."),
			stubmodel.Answer("Your base salary is $125,000."),
		},
	)

	_, err := f.runner.SubmitTurn(context.Background(), TurnRequest{ThreadID: "t-audit", Query: "What is my salary?", Identity: ava})
	require.NoError(t, err)

	var names []string
	for _, ev := range auditEvents(t, buf) {
		names = append(names, ev["event"].(string))
		assert.Equal(t, "t-audit", ev["thread_id"], ev["event"])
		assert.Equal(t, "EMP001", ev["actor"], ev["event"])
		switch ev["event"] {
		case logx.AuditRequestReceived:
			assert.Equal(t, logx.HashText("What is my salary?"), ev["query_hash"])
			assert.NotContains(t, ev, "query")
		case logx.AuditDocumentAccessed:
			assert.Equal(t, offerLetterID, ev["document_id"])
		case logx.AuditToolError:
			assert.Equal(t, "lookup_salary_band", ev["tool_name"])
		}
	}
	assert.ElementsMatch(t, []string{
		logx.AuditRequestReceived, logx.AuditDocumentAccessed, logx.AuditToolError, logx.AuditResponseSent,
	}, names)
	assert.Equal(t, logx.AuditResponseSent, names[len(names)-1])

	for _, m := range f.history(t, "t-audit") {
		if m.Role == schema.Tool {
			assert.Equal(t, m.ToolCallID == "c2", model.IsToolError(m), m.Content)
		}
	}
}
