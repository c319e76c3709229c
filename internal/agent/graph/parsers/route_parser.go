package parsers

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/hrassist/server/internal/agent/model"
	errx "github.com/hrassist/server/internal/core/error"
	logx "github.com/hrassist/server/pkg/logger"
)

// RouteDecisionTool is the name of the tool whose parameters carry the
// routing schema. Binding it is how the router asks for structured output.
const RouteDecisionTool = "route_decision"

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 32 * 1024
	maxErrSnippet = 200
)

// RouteDecisionToolInfo describes the routing schema to the model.
func RouteDecisionToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: RouteDecisionTool,
		Desc: "Record the routing decision for the current user query. Always call this exactly once.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"rag": {
				Type:     schema.Boolean,
				Desc:     "True when answering needs the content of a document or company policy.",
				Required: true,
			},
			"document_name": {
				Type: schema.String,
				Desc: "Name of the document to retrieve, as provided or inferred from the query (e.g. \"PTO policy\").",
			},
			"rag_query": {
				Type: schema.String,
				Desc: "The document or policy part of the query.",
			},
			"agent_query": {
				Type: schema.String,
				Desc: "The personal-data or action part of the query.",
			},
		}),
	}
}

// ParseRouteDecision reads the routing decision from the route_decision tool
// call of msg or, when the provider answered in text, from the JSON object in
// its content. Slightly malformed JSON is repaired before validation; anything
// that still does not match the schema is an *errx.OutputSchemaError.
func ParseRouteDecision(msg *schema.Message) (*model.RouteDecision, error) {
	if msg == nil {
		return nil, &errx.OutputSchemaError{Reason: "empty model response"}
	}

	raw := msg.Content
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == RouteDecisionTool {
			raw = tc.Function.Arguments
			break
		}
	}
	return ParseRouteDecisionJSON(raw)
}

// ParseRouteDecisionJSON validates a raw routing answer.
func ParseRouteDecisionJSON(raw string) (*model.RouteDecision, error) {
	if len(raw) > maxContentLen {
		logx.Warn().
			Str("component", "route_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(raw)).
			Msg("routing output too large")
		return nil, &errx.OutputSchemaError{Reason: "output too large", Raw: safeSnippet(raw)}
	}

	obj, ok := extractObject(raw)
	if !ok {
		return nil, &errx.OutputSchemaError{Reason: "no JSON object in output", Raw: safeSnippet(raw)}
	}

	fields, err := decodeObject(obj)
	if err != nil {
		return nil, &errx.OutputSchemaError{Reason: err.Error(), Raw: safeSnippet(raw)}
	}

	rag, ok := fields["rag"].(bool)
	if !ok {
		return nil, &errx.OutputSchemaError{Reason: `field "rag" must be a boolean`, Raw: safeSnippet(raw)}
	}
	decision := &model.RouteDecision{RAG: rag}
	for name, dst := range map[string]*string{
		"document_name": &decision.DocumentName,
		"rag_query":     &decision.RAGQuery,
		"agent_query":   &decision.AgentQuery,
	} {
		switch v := fields[name].(type) {
		case nil:
		case string:
			*dst = strings.TrimSpace(v)
		default:
			return nil, &errx.OutputSchemaError{Reason: fmt.Sprintf("field %q must be a string", name), Raw: safeSnippet(raw)}
		}
	}
	return decision, nil
}

// decodeObject unmarshals obj, repairing it once when strict decoding fails.
func decodeObject(obj string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(obj), &fields); err == nil && fields != nil {
		return fields, nil
	}

	repaired, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	logx.Debug().Str("component", "route_parser").Msg("routing output repaired")
	fields = nil
	if err := json.Unmarshal([]byte(repaired), &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("output is not a JSON object")
	}
	return fields, nil
}

// extractObject returns the span from the first '{' to the last '}', which
// also strips markdown fences and chatter around the object. An object that
// was cut off before its closing brace is returned as is for repair.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return strings.TrimSpace(s[start:]), true
	}
	return s[start : end+1], true
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	cut := maxErrSnippet
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
