package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/model"
	errx "github.com/hrassist/server/internal/core/error"
	logx "github.com/hrassist/server/pkg/logger"
)

// ===================================
// Get Document Context Tool
// ===================================

type GetDocumentContextInput struct {
	DocumentID   string `json:"document_id,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	EmployeeID   string `json:"employee_id,omitempty"`
}

// GetDocumentContextOutput is also what the context node reads back to learn
// which document was resolved.
type GetDocumentContextOutput struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

func createGetDocumentContextTool(repo model.HRRepository) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetDocumentContext,
			Desc: "Get the full content of a document. Returns the extracted text for PDFs and text files, and rows formatted as \"Row N: column=value | ...\" for spreadsheets. Pass document_id when you know it; otherwise pass document_name to look the title up among the employee's documents and company policies.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"document_id": {
					Type: "string",
					Desc: "Document id (UUID) from list_documents or an earlier lookup.",
				},
				"document_name": {
					Type: "string",
					Desc: "Document title, matched exactly first and then by case-insensitive substring. Examples: Offer Letter, PTO Policy.",
				},
				"employee_id": {
					Type: "string",
					Desc: "Employee id (e.g. EMP001) whose documents are searched by title. Defaults to the current user.",
				},
			}),
		},
		func(ctx context.Context, in *GetDocumentContextInput) (*GetDocumentContextOutput, error) {
			if in.DocumentID == "" && in.DocumentName == "" {
				return nil, fmt.Errorf("document_id or document_name is required")
			}

			doc, err := resolveDocument(ctx, repo, in)
			if err != nil {
				return nil, err
			}
			logx.Audit(ctx, logx.AuditDocumentAccessed, logx.ComponentTool).
				Str("tool", ToolGetDocumentContext).
				Str("document_id", doc.ID).
				Str("title", doc.Title).
				Str("owner_employee_id", doc.OwnerEmployeeID).
				Msg("Document accessed")

			content := doc.Content
			if structured := FormatStructured(doc.Structured); structured != "" {
				content += "\n\nStructured Data:\n" + structured
			}
			if strings.TrimSpace(content) == "" {
				content = "Document has no content."
			}
			return &GetDocumentContextOutput{DocumentID: doc.ID, Title: doc.Title, Content: content}, nil
		},
	)
}

func resolveDocument(ctx context.Context, repo model.HRRepository, in *GetDocumentContextInput) (*model.Document, error) {
	if in.DocumentID != "" {
		doc, err := repo.GetDocument(ctx, in.DocumentID)
		if err == nil {
			return doc, nil
		}
		if !errx.IsNotFound(err) || in.DocumentName == "" {
			return nil, err
		}
	}

	owner, err := employeeOrCaller(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	docs, err := repo.ListDocuments(ctx, owner)
	if err != nil {
		return nil, err
	}
	match, ok := MatchTitle(docs, in.DocumentName)
	if !ok {
		return nil, fmt.Errorf("no document titled %q for employee %s", in.DocumentName, owner)
	}
	return repo.GetDocument(ctx, match.ID)
}

// MatchTitle picks the document whose title equals name, ignoring case, and
// falls back to the first title containing it.
func MatchTitle(docs []model.DocumentSummary, name string) (model.DocumentSummary, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return model.DocumentSummary{}, false
	}
	for _, d := range docs {
		if strings.ToLower(d.Title) == name {
			return d, true
		}
	}
	for _, d := range docs {
		title := strings.ToLower(strings.TrimSpace(d.Title))
		if title == "" {
			continue
		}
		if strings.Contains(title, name) || strings.Contains(name, title) {
			return d, true
		}
	}
	return model.DocumentSummary{}, false
}

// ===================================
// List Documents Tool
// ===================================

type ListDocumentsInput struct {
	EmployeeID string `json:"employee_id,omitempty"`
}

type ListDocumentsOutput struct {
	Documents []model.DocumentSummary `json:"documents"`
	Total     int                     `json:"total"`
}

func createListDocumentsTool(repo model.HRRepository) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolListDocuments,
			Desc: "List the documents owned by an employee together with all company policy documents. Returns id, title, kind and owner for each; documents without an owner are company policies.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"employee_id": {
					Type: "string",
					Desc: "Employee id (e.g. EMP001). Defaults to the current user.",
				},
			}),
		},
		func(ctx context.Context, in *ListDocumentsInput) (*ListDocumentsOutput, error) {
			owner, err := employeeOrCaller(ctx, in.EmployeeID)
			if err != nil {
				return nil, err
			}
			docs, err := repo.ListDocuments(ctx, owner)
			if err != nil {
				return nil, err
			}
			return &ListDocumentsOutput{Documents: docs, Total: len(docs)}, nil
		},
	)
}
