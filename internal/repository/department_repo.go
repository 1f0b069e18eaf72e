package repository

import (
	"database/sql"
	"fmt"

	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// DepartmentRepository handles department database operations
type DepartmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDepartmentRepository creates a new department repository
func NewDepartmentRepository(db *sql.DB, logger *zap.Logger) *DepartmentRepository {
	return &DepartmentRepository{db: db, logger: logger}
}

// Create inserts a department
func (r *DepartmentRepository) Create(tx *sql.Tx, dept *models.Department) error {
	query := `
		INSERT INTO departments (code, name, parent_id)
		VALUES (?, ?, ?)
	`
	result, err := pick(r.db, tx).Exec(query, dept.Code, dept.Name, dept.ParentID)
	if err != nil {
		r.logger.Error("Failed to create department", zap.Error(err))
		return fmt.Errorf("failed to create department: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	dept.ID = id
	return nil
}

// GetByID retrieves a department by id. Returns nil without error on miss.
func (r *DepartmentRepository) GetByID(tx *sql.Tx, id int64) (*models.Department, error) {
	query := `
		SELECT id, COALESCE(code, ''), name, parent_id, archived, created_at, updated_at
		FROM departments
		WHERE id = ?
	`
	var dept models.Department
	err := pick(r.db, tx).QueryRow(query, id).Scan(
		&dept.ID, &dept.Code, &dept.Name, &dept.ParentID,
		&dept.Archived, &dept.CreatedAt, &dept.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return &dept, nil
}

// FindByCodeOrName resolves a department by business code, falling back to
// its name. Used by the routing DSL at template-authoring time.
func (r *DepartmentRepository) FindByCodeOrName(tx *sql.Tx, key string) (*models.Department, error) {
	query := `
		SELECT id, COALESCE(code, ''), name, parent_id, archived, created_at, updated_at
		FROM departments
		WHERE archived = 0 AND (code = ? OR name = ?)
		ORDER BY CASE WHEN code = ? THEN 0 ELSE 1 END, id
		LIMIT 1
	`
	var dept models.Department
	err := pick(r.db, tx).QueryRow(query, key, key, key).Scan(
		&dept.ID, &dept.Code, &dept.Name, &dept.ParentID,
		&dept.Archived, &dept.CreatedAt, &dept.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find department: %w", err)
	}
	return &dept, nil
}

// ListChildren returns the direct non-archived children of a department
func (r *DepartmentRepository) ListChildren(tx *sql.Tx, parentID int64) ([]*models.Department, error) {
	query := `
		SELECT id, COALESCE(code, ''), name, parent_id, archived, created_at, updated_at
		FROM departments
		WHERE parent_id = ? AND archived = 0
		ORDER BY id
	`
	rows, err := pick(r.db, tx).Query(query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()
	return scanDepartments(rows)
}

// List returns all non-archived departments
func (r *DepartmentRepository) List(tx *sql.Tx) ([]*models.Department, error) {
	query := `
		SELECT id, COALESCE(code, ''), name, parent_id, archived, created_at, updated_at
		FROM departments
		WHERE archived = 0
		ORDER BY id
	`
	rows, err := pick(r.db, tx).Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()
	return scanDepartments(rows)
}

// Archive soft-deletes a department
func (r *DepartmentRepository) Archive(tx *sql.Tx, id int64) error {
	query := `UPDATE departments SET archived = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, id); err != nil {
		return fmt.Errorf("failed to archive department: %w", err)
	}
	return nil
}

func scanDepartments(rows *sql.Rows) ([]*models.Department, error) {
	var depts []*models.Department
	for rows.Next() {
		var dept models.Department
		if err := rows.Scan(
			&dept.ID, &dept.Code, &dept.Name, &dept.ParentID,
			&dept.Archived, &dept.CreatedAt, &dept.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		depts = append(depts, &dept)
	}
	return depts, rows.Err()
}
