package parsers

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrassist/server/internal/agent/model"
	errx "github.com/hrassist/server/internal/core/error"
)

func TestParseRouteDecision_FromToolCall(t *testing.T) {
	msg := schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_1",
		Function: schema.FunctionCall{Name: RouteDecisionTool, Arguments: `{"rag":true,"document_name":" Offer Letter ","rag_query":"summarize my offer letter"}`},
	}})

	got, err := ParseRouteDecision(msg)
	require.NoError(t, err)
	assert.Equal(t, &model.RouteDecision{RAG: true, DocumentName: "Offer Letter", RAGQuery: "summarize my offer letter"}, got)
}

func TestParseRouteDecisionJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *model.RouteDecision
	}{
		{"plain", `{"rag": false, "agent_query": "how much PTO do I have"}`, &model.RouteDecision{AgentQuery: "how much PTO do I have"}},
		{"fenced", "```json\n{\"rag\": true, \"document_name\": \"PTO policy\"}\n```", &model.RouteDecision{RAG: true, DocumentName: "PTO policy"}},
		{"nulls", `{"rag": false, "document_name": null}`, &model.RouteDecision{}},
		{"trailing comma", `{"rag": true, "document_name": "PTO policy",}`, &model.RouteDecision{RAG: true, DocumentName: "PTO policy"}},
		{"single quotes", `{'rag': false}`, &model.RouteDecision{}},
		{"truncated", `{"rag": true, "document_name": "Offer Letter"`, &model.RouteDecision{RAG: true, DocumentName: "Offer Letter"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRouteDecisionJSON(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRouteDecisionJSON_SchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"no json", "I think you need the PTO policy.", "no JSON object"},
		{"missing rag", `{"document_name": "PTO policy"}`, `"rag" must be a boolean`},
		{"string rag", `{"rag": "yes"}`, `"rag" must be a boolean`},
		{"numeric document", `{"rag": true, "document_name": 7}`, `"document_name" must be a string`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRouteDecisionJSON(tt.raw)
			var schemaErr *errx.OutputSchemaError
			require.True(t, errors.As(err, &schemaErr), "got %v", err)
			assert.Contains(t, schemaErr.Reason, tt.reason)
		})
	}
}

func TestParseRouteDecision_Nil(t *testing.T) {
	_, err := ParseRouteDecision(nil)
	var schemaErr *errx.OutputSchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestSafeSnippet_KeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", maxErrSnippet-1) + "ü tail"
	got := safeSnippet(s)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxErrSnippet-1), got)

	assert.Equal(t, "short", safeSnippet("  short "))
}
