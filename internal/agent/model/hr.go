package model

import (
	"context"
	"encoding/json"
)

type Employee struct {
	ID                string  `json:"id"`
	EmployeeID        string  `json:"employee_id"`
	Name              string  `json:"name"`
	JobTitle          string  `json:"job_title"`
	Department        string  `json:"department"`
	ManagerEmployeeID string  `json:"manager_employee_id,omitempty"`
	PTOBalanceDays    float64 `json:"pto_balance_days"`
	SickBalanceDays   float64 `json:"sick_balance_days"`
}

// DocumentSummary lists a document without its content. An empty owner marks
// a company-wide policy document.
type DocumentSummary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	OwnerEmployeeID string `json:"owner_employee_id,omitempty"`
	Kind            string `json:"kind"`
}

// Document carries the extracted text of a file and, for spreadsheets, the
// structured rows.
type Document struct {
	DocumentSummary
	Content    string          `json:"content"`
	Structured json.RawMessage `json:"content_structured,omitempty"`
}

// HRRepository reads the employee directory and document store behind the tools.
type HRRepository interface {
	// GetEmployee looks up an employee by the human-readable employee id (e.g. EMP001).
	GetEmployee(ctx context.Context, employeeID string) (*Employee, error)

	// ListDocuments returns the documents owned by the employee plus all company policies.
	ListDocuments(ctx context.Context, ownerEmployeeID string) ([]DocumentSummary, error)

	// GetDocument returns a document with its content by id.
	GetDocument(ctx context.Context, id string) (*Document, error)

	Close() error
}
