package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"

	"github.com/hrassist/server/internal/agent/model"
)

const (
	ToolGetDocumentContext = "get_document_context"
	ToolListDocuments      = "list_documents"
	ToolGetEmployeeProfile = "get_employee_profile"
	ToolGetTimeOffBalance  = "get_time_off_balance"
)

// GetContextTools returns the single tool the context-retrieval node may call.
func GetContextTools(repo model.HRRepository) []tool.BaseTool {
	return []tool.BaseTool{createGetDocumentContextTool(repo)}
}

// GetHRTools returns the full collection bound to the action node.
func GetHRTools(repo model.HRRepository) []tool.BaseTool {
	return []tool.BaseTool{
		createGetDocumentContextTool(repo),
		createListDocumentsTool(repo),
		createGetEmployeeProfileTool(repo),
		createGetTimeOffBalanceTool(repo),
	}
}

type callerKey struct{}

// WithCaller attaches the requesting employee id, used when the model omits
// employee_id from a call.
func WithCaller(ctx context.Context, employeeID string) context.Context {
	return context.WithValue(ctx, callerKey{}, employeeID)
}

func callerFrom(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}

func employeeOrCaller(ctx context.Context, employeeID string) (string, error) {
	if employeeID != "" {
		return employeeID, nil
	}
	if id := callerFrom(ctx); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("employee_id is required")
}
