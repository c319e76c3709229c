package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/model"
)

//go:embed template/route_prompt.txt
var routeSystemPrompt string

//go:embed template/context_prompt.txt
var contextSystemPrompt string

//go:embed template/execution_prompt.txt
var executionSystemPrompt string

// RenderRouteSystem renders the routing system prompt via Eino prompt component.
func RenderRouteSystem(ctx context.Context, config model.PromptConfig) (string, error) {
	return render(ctx, "route", routeSystemPrompt, config)
}

// RenderContextSystem renders the context-retrieval system prompt.
func RenderContextSystem(ctx context.Context, config model.PromptConfig) (string, error) {
	return render(ctx, "context", contextSystemPrompt, config)
}

// RenderExecutionSystem renders the action system prompt.
func RenderExecutionSystem(ctx context.Context, config model.PromptConfig) (string, error) {
	return render(ctx, "execution", executionSystemPrompt, config)
}

// render goes through the Eino chat template so Prompt callbacks fire.
func render(ctx context.Context, name, text string, config model.PromptConfig) (string, error) {
	tpl := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(text))
	msgs, err := tpl.Format(ctx, map[string]any{
		"CompanyName": config.CompanyName,
	})
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("render %s prompt: empty result", name)
	}
	return msgs[0].Content, nil
}

// RouteHuman builds the human message of the router: recent turns, then the
// query and the caller's document name hint.
func RouteHuman(query, documentHint string, recent []*schema.Message) string {
	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("<conversation_context>\n")
		for _, msg := range recent {
			if msg == nil || strings.TrimSpace(msg.Content) == "" {
				continue
			}
			switch msg.Role {
			case schema.User:
				b.WriteString("UserMessage(" + msg.Content + ")\n")
			case schema.Assistant:
				b.WriteString("AssistantMessage(" + msg.Content + ")\n")
			}
		}
		b.WriteString("</conversation_context>\n\n")
	}
	if documentHint == "" {
		b.WriteString("User Query: " + query)
	} else {
		b.WriteString("User Query: " + query + "\n\nDocument Name Provided: " + documentHint)
	}
	return b.String()
}

// ContextHuman builds the human message of the context-retrieval node.
func ContextHuman(documentName, employeeID, ragQuery string) string {
	s := fmt.Sprintf("Document Name: %s, Employee ID: %s", documentName, employeeID)
	if ragQuery != "" {
		s += "\n\nRequest: " + ragQuery
	}
	return s
}

// ExecutionHuman builds the enhanced query of the action node: an identity
// header when a job title is known, the query, then any document context.
func ExecutionHuman(s *model.ConversationState) string {
	query := s.AgentQuery
	if query == "" {
		query = s.UserQuery
	}
	if s.JobTitle != "" {
		query = fmt.Sprintf("[User Job Title: %s, Employee ID: %s, Employee Name: %s]\n\n%s", s.JobTitle, s.EmployeeID, s.EmployeeName, query)
	}
	if s.FormattedContext != "" {
		query += "\n\nDocument Context:\n" + s.FormattedContext
	}
	return query
}
