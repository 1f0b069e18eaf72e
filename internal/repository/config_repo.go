package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// ConfigRepository handles routing template database operations. A template
// is always loaded and stored together with its steps and conditions.
type ConfigRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewConfigRepository creates a new config repository
func NewConfigRepository(db *sql.DB, logger *zap.Logger) *ConfigRepository {
	return &ConfigRepository{db: db, logger: logger}
}

// Create inserts a template with its steps and conditions
func (r *ConfigRepository) Create(tx *sql.Tx, cfg *models.AuditConfig) error {
	query := `
		INSERT INTO audit_configs (category, subtype, priority, fallback, need_task)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := pick(r.db, tx).Exec(query,
		cfg.Category, cfg.Subtype, cfg.Priority, cfg.Fallback, cfg.NeedTask,
	)
	if err != nil {
		r.logger.Error("Failed to create audit config", zap.Error(err))
		return fmt.Errorf("failed to create config: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	cfg.ID = id

	for i := range cfg.Steps {
		step := &cfg.Steps[i]
		step.ConfigID = id
		stepQuery := `
			INSERT INTO audit_config_steps (config_id, position, department_id, position_id)
			VALUES (?, ?, ?, ?)
		`
		res, err := pick(r.db, tx).Exec(stepQuery, id, step.Position, step.DepartmentID, step.PositionID)
		if err != nil {
			return fmt.Errorf("failed to create config step: %w", err)
		}
		if step.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	for i := range cfg.Conditions {
		cond := &cfg.Conditions[i]
		cond.ConfigID = id
		raw, err := json.Marshal(cond.Value)
		if err != nil {
			return fmt.Errorf("failed to encode condition value: %w", err)
		}
		condQuery := `
			INSERT INTO audit_config_conditions (config_id, prop, operator, value)
			VALUES (?, ?, ?, ?)
		`
		res, err := pick(r.db, tx).Exec(condQuery, id, cond.Prop, cond.Operator, string(raw))
		if err != nil {
			return fmt.Errorf("failed to create config condition: %w", err)
		}
		if cond.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a template with steps and conditions. Returns nil without
// error on miss.
func (r *ConfigRepository) GetByID(tx *sql.Tx, id int64) (*models.AuditConfig, error) {
	query := `
		SELECT id, category, subtype, priority, fallback, need_task, abnormal, archived, created_at, updated_at
		FROM audit_configs
		WHERE id = ?
	`
	var cfg models.AuditConfig
	err := pick(r.db, tx).QueryRow(query, id).Scan(
		&cfg.ID, &cfg.Category, &cfg.Subtype, &cfg.Priority,
		&cfg.Fallback, &cfg.NeedTask, &cfg.Abnormal, &cfg.Archived,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	if err := r.loadDetails(tx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListBySubtype returns the non-archived templates of a subtype, with steps
// and conditions, ordered by priority then id.
func (r *ConfigRepository) ListBySubtype(tx *sql.Tx, subtype string) ([]*models.AuditConfig, error) {
	query := `
		SELECT id, category, subtype, priority, fallback, need_task, abnormal, archived, created_at, updated_at
		FROM audit_configs
		WHERE subtype = ? AND archived = 0
		ORDER BY priority, id
	`
	return r.list(tx, query, subtype)
}

// ListActive returns every non-archived template with steps and conditions
func (r *ConfigRepository) ListActive(tx *sql.Tx) ([]*models.AuditConfig, error) {
	query := `
		SELECT id, category, subtype, priority, fallback, need_task, abnormal, archived, created_at, updated_at
		FROM audit_configs
		WHERE archived = 0
		ORDER BY id
	`
	return r.list(tx, query)
}

// ListAbnormal returns the non-archived templates currently flagged abnormal
func (r *ConfigRepository) ListAbnormal(tx *sql.Tx) ([]*models.AuditConfig, error) {
	query := `
		SELECT id, category, subtype, priority, fallback, need_task, abnormal, archived, created_at, updated_at
		FROM audit_configs
		WHERE archived = 0 AND abnormal = 1
		ORDER BY id
	`
	return r.list(tx, query)
}

// FindFallback returns the non-archived fallback template of a subtype, if any
func (r *ConfigRepository) FindFallback(tx *sql.Tx, subtype string) (*models.AuditConfig, error) {
	query := `
		SELECT id FROM audit_configs
		WHERE subtype = ? AND archived = 0 AND fallback = 1
		LIMIT 1
	`
	var id int64
	err := pick(r.db, tx).QueryRow(query, subtype).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find fallback config: %w", err)
	}
	return r.GetByID(tx, id)
}

// SetAbnormal updates a template's abnormal flag
func (r *ConfigRepository) SetAbnormal(tx *sql.Tx, id int64, abnormal bool) error {
	query := `UPDATE audit_configs SET abnormal = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, abnormal, id); err != nil {
		return fmt.Errorf("failed to set config abnormal flag: %w", err)
	}
	return nil
}

// SetStepAbnormal updates a template step's abnormal flag
func (r *ConfigRepository) SetStepAbnormal(tx *sql.Tx, stepID int64, abnormal bool) error {
	query := `UPDATE audit_config_steps SET abnormal = ? WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, abnormal, stepID); err != nil {
		return fmt.Errorf("failed to set config step abnormal flag: %w", err)
	}
	return nil
}

// Archive soft-deletes a template
func (r *ConfigRepository) Archive(tx *sql.Tx, id int64) error {
	query := `UPDATE audit_configs SET archived = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, id); err != nil {
		return fmt.Errorf("failed to archive config: %w", err)
	}
	return nil
}

func (r *ConfigRepository) list(tx *sql.Tx, query string, args ...interface{}) ([]*models.AuditConfig, error) {
	rows, err := pick(r.db, tx).Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.AuditConfig
	for rows.Next() {
		var cfg models.AuditConfig
		if err := rows.Scan(
			&cfg.ID, &cfg.Category, &cfg.Subtype, &cfg.Priority,
			&cfg.Fallback, &cfg.NeedTask, &cfg.Abnormal, &cfg.Archived,
			&cfg.CreatedAt, &cfg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		configs = append(configs, &cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, cfg := range configs {
		if err := r.loadDetails(tx, cfg); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

func (r *ConfigRepository) loadDetails(tx *sql.Tx, cfg *models.AuditConfig) error {
	stepQuery := `
		SELECT id, config_id, position, department_id, position_id, abnormal
		FROM audit_config_steps
		WHERE config_id = ?
		ORDER BY position
	`
	rows, err := pick(r.db, tx).Query(stepQuery, cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to load config steps: %w", err)
	}
	defer rows.Close()

	cfg.Steps = nil
	for rows.Next() {
		var step models.ConfigStep
		if err := rows.Scan(
			&step.ID, &step.ConfigID, &step.Position,
			&step.DepartmentID, &step.PositionID, &step.Abnormal,
		); err != nil {
			return fmt.Errorf("failed to scan config step: %w", err)
		}
		cfg.Steps = append(cfg.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	condQuery := `
		SELECT id, config_id, prop, operator, value
		FROM audit_config_conditions
		WHERE config_id = ?
		ORDER BY id
	`
	condRows, err := pick(r.db, tx).Query(condQuery, cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to load config conditions: %w", err)
	}
	defer condRows.Close()

	cfg.Conditions = nil
	for condRows.Next() {
		var cond models.Condition
		var raw string
		if err := condRows.Scan(&cond.ID, &cond.ConfigID, &cond.Prop, &cond.Operator, &raw); err != nil {
			return fmt.Errorf("failed to scan config condition: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &cond.Value); err != nil {
			return fmt.Errorf("failed to decode condition value: %w", err)
		}
		cfg.Conditions = append(cfg.Conditions, cond)
	}
	return condRows.Err()
}
