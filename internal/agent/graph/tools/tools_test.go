package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrassist/server/internal/agent/model"
	"github.com/hrassist/server/internal/agent/repo"
)

const offerLetterID = "0d8e6a4c-2b1f-4e3d-9c5a-7b6e8f9a0c11"

func newHR(t *testing.T) model.HRRepository {
	t.Helper()
	ctx := context.Background()
	hr, err := repo.NewSQLiteHRRepository(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = hr.Close() })
	require.NoError(t, hr.Seed(ctx))
	return hr
}

// runTools executes calls as one round of an HR tools node.
func runTools(t *testing.T, ctx context.Context, calls ...schema.ToolCall) []*schema.Message {
	t.Helper()
	node, err := NewToolsNode(context.Background(), GetHRTools(newHR(t)), 2)
	require.NoError(t, err)
	out, err := node.Invoke(ctx, schema.AssistantMessage("", calls))
	require.NoError(t, err)
	require.Len(t, out, len(calls))
	return out
}

func call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func TestGetToolInfos(t *testing.T) {
	infos, err := GetToolInfos(context.Background(), GetHRTools(newHR(t)))
	require.NoError(t, err)
	names := make([]string, 0, 4)
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{ToolGetDocumentContext, ToolListDocuments, ToolGetEmployeeProfile, ToolGetTimeOffBalance}, names)
}

func TestNewToolsNode_RejectsDuplicates(t *testing.T) {
	hr := newHR(t)
	_, err := NewToolsNode(context.Background(), append(GetContextTools(hr), GetContextTools(hr)...), 1)
	assert.ErrorContains(t, err, "registered twice")
}

func TestToolsNode_GetDocumentContextByID(t *testing.T) {
	out := runTools(t, context.Background(), call("call_1", ToolGetDocumentContext, `{"document_id":" `+offerLetterID+` "}`))
	msg := out[0]
	require.Equal(t, schema.Tool, msg.Role)
	assert.Equal(t, "call_1", msg.ToolCallID)
	assert.Equal(t, ToolGetDocumentContext, msg.ToolName)

	var got GetDocumentContextOutput
	require.NoError(t, json.Unmarshal([]byte(msg.Content), &got))
	assert.Equal(t, offerLetterID, got.DocumentID)
	assert.Equal(t, "Offer Letter", got.Title)
	assert.Contains(t, got.Content, "$125,000")
}

func TestToolsNode_GetDocumentContextByTitle(t *testing.T) {
	ctx := WithCaller(context.Background(), "EMP001")
	out := runTools(t, ctx, call("call_2", ToolGetDocumentContext, `{"document_name":"leave balances"}`))

	var got GetDocumentContextOutput
	require.NoError(t, json.Unmarshal([]byte(out[0].Content), &got), out[0].Content)
	assert.Equal(t, "Leave Balances 2026", got.Title)
	assert.Contains(t, got.Content, "Structured Data:\nRow 1: employee_id=EMP001 | annual=14.5 | sick=8")
}

func TestToolsNode_ToolErrorsAreData(t *testing.T) {
	tests := []struct {
		name string
		call schema.ToolCall
		want string
	}{
		{"unknown tool", call("c1", "drop_tables", `{}`), "unknown tool"},
		{"missing arguments", call("c2", ToolGetDocumentContext, ``), "document_id or document_name is required"},
		{"missing document", call("c3", ToolGetDocumentContext, `{"document_id":"nope"}`), "record not found"},
		{"no caller", call("c4", ToolGetTimeOffBalance, `{}`), "employee_id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := runTools(t, context.Background(), tt.call)[0]
			assert.Equal(t, tt.call.ID, msg.ToolCallID)
			var payload map[string]string
			require.NoError(t, json.Unmarshal([]byte(msg.Content), &payload))
			assert.Contains(t, payload["error"], tt.want)
		})
	}
}

func TestToolsNode_ResultsKeepCallOrder(t *testing.T) {
	ctx := WithCaller(context.Background(), "EMP002")
	calls := []schema.ToolCall{
		call("c1", ToolGetTimeOffBalance, `{}`),
		call("c2", ToolGetEmployeeProfile, `{"employee_id":"emp003"}`),
		call("c3", "unknown_tool", `{}`),
		call("c4", ToolListDocuments, `{}`),
	}
	out := runTools(t, ctx, calls...)
	for i, msg := range out {
		assert.Equal(t, calls[i].ID, msg.ToolCallID)
	}

	var balance TimeOffBalanceOutput
	require.NoError(t, json.Unmarshal([]byte(out[0].Content), &balance), out[0].Content)
	assert.Equal(t, "EMP002", balance.EmployeeID)
	assert.InDelta(t, 9.0, balance.PTOBalanceDays, 0.001)
	assert.Contains(t, out[1].Content, "Emma Johnson")
	assert.Contains(t, out[2].Content, "unknown tool")
}

type panicTool struct{}

func (panicTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: "explode"}, nil
}

func (panicTool) InvokableRun(context.Context, string, ...tool.Option) (string, error) {
	panic("boom")
}

func TestToolsNode_RecoversPanics(t *testing.T) {
	node, err := NewToolsNode(context.Background(), []tool.BaseTool{panicTool{}}, 1)
	require.NoError(t, err)
	out, err := node.Invoke(context.Background(), schema.AssistantMessage("", []schema.ToolCall{call("c1", "explode", `{}`)}))
	require.NoError(t, err)
	assert.Contains(t, out[0].Content, "panicked")
}

func TestSanitizeArguments(t *testing.T) {
	assert.Equal(t, `{}`, SanitizeArguments(""))
	assert.Equal(t, `not json`, SanitizeArguments("not json"))
	assert.JSONEq(t, `{"employee_id":"EMP001","document_id":"42"}`,
		SanitizeArguments(`{"employee_id":" emp001 ","document_id":42,"document_name":null}`))
}

func TestFormatStructured(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", ``, ""},
		{"invalid", `[1,2]`, ""},
		{"declared columns", `{"columns":["a","b"],"preview_rows":[{"a":1,"b":"x"},{"a":null}]}`, "Row 1: a=1 | b=x\nRow 2: a=N/A | b="},
		{"row keys", `{"preview_rows":[{"z":true,"a":"y","n":null}]}`, "Row 1: a=y | z=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatStructured(json.RawMessage(tt.raw)))
		})
	}
}

func TestMatchTitle(t *testing.T) {
	docs := []model.DocumentSummary{{ID: "1", Title: "PTO Policy"}, {ID: "2", Title: "PTO Policy Addendum"}}
	got, ok := MatchTitle(docs, "pto policy addendum")
	require.True(t, ok)
	assert.Equal(t, "2", got.ID)

	got, ok = MatchTitle(docs, "pto")
	require.True(t, ok)
	assert.Equal(t, "1", got.ID)

	_, ok = MatchTitle(docs, "payroll")
	assert.False(t, ok)

	untitled := []model.DocumentSummary{{ID: "0", Title: "  "}, {ID: "3", Title: "Payroll Calendar"}}
	got, ok = MatchTitle(untitled, "payroll")
	require.True(t, ok)
	assert.Equal(t, "3", got.ID, "an empty title never matches")
	_, ok = MatchTitle(untitled[:1], "anything")
	assert.False(t, ok)
}
