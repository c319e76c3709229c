package repo

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hrassist/server/internal/agent/model"
	errx "github.com/hrassist/server/internal/core/error"
	logx "github.com/hrassist/server/pkg/logger"
)

// PostgresHRRepository reads the HR directory from Postgres. It expects the
// same tables as hr_schema.sql, with content_structured stored as JSONB.
type PostgresHRRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresHRRepository(ctx context.Context, dsn string) (*PostgresHRRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errx.WrapDB(err)
	}
	return &PostgresHRRepository{pool: pool}, nil
}

func (r *PostgresHRRepository) GetEmployee(ctx context.Context, employeeID string) (*model.Employee, error) {
	var (
		e       model.Employee
		manager *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, employee_id, name, job_title, department, manager_employee_id, pto_balance_days, sick_balance_days
		FROM employees WHERE employee_id = $1`, strings.TrimSpace(employeeID)).
		Scan(&e.ID, &e.EmployeeID, &e.Name, &e.JobTitle, &e.Department, &manager, &e.PTOBalanceDays, &e.SickBalanceDays)
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	if manager != nil {
		e.ManagerEmployeeID = *manager
	}
	return &e, nil
}

func (r *PostgresHRRepository) ListDocuments(ctx context.Context, ownerEmployeeID string) ([]model.DocumentSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, title, owner_employee_id, kind FROM documents
		WHERE owner_employee_id = $1 OR owner_employee_id IS NULL
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
			owner *string
		)
		if err := rows.Scan(&d.ID, &d.Title, &owner, &d.Kind); err != nil {
			return nil, errx.WrapDB(err)
		}
		if owner != nil {
			d.OwnerEmployeeID = *owner
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapDB(err)
	}
	return docs, nil
}

func (r *PostgresHRRepository) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var (
		d          model.Document
		owner      *string
		structured []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, title, owner_employee_id, kind, content, content_structured
		FROM documents WHERE id::text = $1`, strings.TrimSpace(id)).
		Scan(&d.ID, &d.Title, &owner, &d.Kind, &d.Content, &structured)
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	if owner != nil {
		d.OwnerEmployeeID = *owner
	}
	if len(structured) > 0 {
		d.Structured = structured
	}
	return &d, nil
}

func (r *PostgresHRRepository) Close() error {
	r.pool.Close()
	return nil
}

var _ model.HRRepository = (*PostgresHRRepository)(nil)
