package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hrassist/server/internal/agent/model"
	errx "github.com/hrassist/server/internal/core/error"
	logx "github.com/hrassist/server/pkg/logger"
	_ "modernc.org/sqlite"
)

//go:embed hr_schema.sql
var hrSchema string

//go:embed hr_seed.sql
var hrSeed string

// SQLiteHRRepository serves the HR directory from a local SQLite file. It is
// the development and test backend; production deployments use Postgres.
type SQLiteHRRepository struct {
	db *sql.DB
}

// NewSQLiteHRRepository opens (and migrates) the database at path. The
// special path ":memory:" keeps everything in one private connection.
func NewSQLiteHRRepository(ctx context.Context, path string) (*SQLiteHRRepository, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, hrSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteHRRepository{db: db}, nil
}

// Seed loads the demo employees and documents. Existing rows are kept.
func (r *SQLiteHRRepository) Seed(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, hrSeed); err != nil {
		logx.Error().Err(err).Msg("failed to seed hr data")
		return errx.WrapDB(err)
	}
	return nil
}

func (r *SQLiteHRRepository) GetEmployee(ctx context.Context, employeeID string) (*model.Employee, error) {
	var (
		e       model.Employee
		manager sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, employee_id, name, job_title, department, manager_employee_id, pto_balance_days, sick_balance_days
		FROM employees WHERE employee_id = ?`, strings.TrimSpace(employeeID)).
		Scan(&e.ID, &e.EmployeeID, &e.Name, &e.JobTitle, &e.Department, &manager, &e.PTOBalanceDays, &e.SickBalanceDays)
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	e.ManagerEmployeeID = manager.String
	return &e, nil
}

func (r *SQLiteHRRepository) ListDocuments(ctx context.Context, ownerEmployeeID string) ([]model.DocumentSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, owner_employee_id, kind FROM documents
		WHERE owner_employee_id = ? OR owner_employee_id IS NULL
		ORDER BY owner_employee_id IS NULL, title`, strings.TrimSpace(ownerEmployeeID))
	if err != nil {
		logx.Error().Err(err).Str("employee_id", ownerEmployeeID).Msg("failed to list documents")
		return nil, errx.WrapDB(err)
	}
	defer rows.Close()

	docs := []model.DocumentSummary{}
	for rows.Next() {
		var (
			d     model.DocumentSummary
			owner sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Title, &owner, &d.Kind); err != nil {
			return nil, errx.WrapDB(err)
		}
		d.OwnerEmployeeID = owner.String
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapDB(err)
	}
	return docs, nil
}

func (r *SQLiteHRRepository) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var (
		d          model.Document
		owner      sql.NullString
		structured sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, owner_employee_id, kind, content, content_structured
		FROM documents WHERE id = ?`, strings.TrimSpace(id)).
		Scan(&d.ID, &d.Title, &owner, &d.Kind, &d.Content, &structured)
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	d.OwnerEmployeeID = owner.String
	if structured.Valid && structured.String != "" {
		d.Structured = []byte(structured.String)
	}
	return &d, nil
}

func (r *SQLiteHRRepository) Close() error {
	return r.db.Close()
}

var _ model.HRRepository = (*SQLiteHRRepository)(nil)
