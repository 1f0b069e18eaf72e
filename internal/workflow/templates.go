package workflow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moxworks/auditflow/internal/dsl"
	"github.com/moxworks/auditflow/internal/models"
	"go.uber.org/zap"
)

// DepartmentResolver and PositionResolver translate the name-or-code keys of
// the routing DSL into directory records at authoring time.
type DepartmentResolver interface {
	FindByCodeOrName(tx *sql.Tx, key string) (*models.Department, error)
}

type PositionResolver interface {
	FindByCodeOrName(tx *sql.Tx, key string) (*models.Position, error)
}

// TemplateService administers routing templates. Edits are rare and
// administrative; the single-fallback-per-subtype invariant is enforced at
// write time.
type TemplateService struct {
	db          TxRunner
	configs     ConfigStore
	departments DepartmentResolver
	positions   PositionResolver
	logger      *zap.Logger
}

// NewTemplateService creates a template service
func NewTemplateService(
	db TxRunner,
	configs ConfigStore,
	departments DepartmentResolver,
	positions PositionResolver,
	logger *zap.Logger,
) *TemplateService {
	return &TemplateService{
		db:          db,
		configs:     configs,
		departments: departments,
		positions:   positions,
		logger:      logger,
	}
}

// Create validates and persists a structured template.
func (s *TemplateService) Create(ctx context.Context, cfg *models.AuditConfig) error {
	if cfg.Subtype == "" {
		return fmt.Errorf("template subtype is required: %w", ErrInvalidState)
	}
	for i := range cfg.Steps {
		cfg.Steps[i].Position = i
		if cfg.Steps[i].DepartmentID != nil && cfg.Steps[i].PositionID == nil {
			return fmt.Errorf("step %d has a department but no position: %w", i, ErrInvalidState)
		}
	}
	for _, cond := range cfg.Conditions {
		switch cond.Operator {
		case models.OpEq, models.OpLt, models.OpLte, models.OpGt, models.OpGte:
		default:
			return fmt.Errorf("unknown comparator %q: %w", cond.Operator, ErrInvalidState)
		}
	}

	return s.db.WithTransaction(func(tx *sql.Tx) error {
		if cfg.Fallback {
			existing, err := s.configs.FindFallback(tx, cfg.Subtype)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("subtype %q: %w", cfg.Subtype, ErrFallbackExists)
			}
		}
		if err := s.configs.Create(tx, cfg); err != nil {
			return err
		}
		s.logger.Info("Routing template created",
			zap.Int64("config_id", cfg.ID),
			zap.String("subtype", cfg.Subtype),
			zap.Bool("fallback", cfg.Fallback))
		return nil
	})
}

// CreateFromDSL parses the compact routing grammar and persists the
// resulting template. Department and position keys resolve by business code
// first, then name; an unresolvable key fails the whole creation.
func (s *TemplateService) CreateFromDSL(ctx context.Context, text string, priority int, fallback bool) (*models.AuditConfig, error) {
	parsed, err := dsl.Parse(text)
	if err != nil {
		return nil, err
	}

	cfg := &models.AuditConfig{
		Category: parsed.Category,
		Subtype:  parsed.Subtype,
		Priority: priority,
		Fallback: fallback,
		NeedTask: parsed.NeedTask,
	}

	for i, step := range parsed.Steps {
		cs := models.ConfigStep{Position: i}
		if step.Department != dsl.CreatorDepartment {
			dept, err := s.departments.FindByCodeOrName(nil, step.Department)
			if err != nil {
				return nil, err
			}
			if dept == nil {
				return nil, fmt.Errorf("department %q: %w", step.Department, ErrNotFound)
			}
			cs.DepartmentID = &dept.ID
		}
		pos, err := s.positions.FindByCodeOrName(nil, step.Position)
		if err != nil {
			return nil, err
		}
		if pos == nil {
			return nil, fmt.Errorf("position %q: %w", step.Position, ErrNotFound)
		}
		cs.PositionID = &pos.ID
		cfg.Steps = append(cfg.Steps, cs)
	}

	for _, cond := range parsed.Conditions {
		cfg.Conditions = append(cfg.Conditions, models.Condition{
			Prop:     cond.Prop,
			Operator: cond.Operator,
			Value:    cond.Value,
		})
	}

	if err := s.Create(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// List returns the non-archived templates of a subtype, or all of them when
// subtype is empty.
func (s *TemplateService) List(ctx context.Context, subtype string) ([]*models.AuditConfig, error) {
	if subtype == "" {
		return s.configs.ListActive(nil)
	}
	return s.configs.ListBySubtype(nil, subtype)
}

// Archive soft-deletes a template; in-flight activities keep their
// materialized steps.
func (s *TemplateService) Archive(ctx context.Context, id int64) error {
	cfg, err := s.configs.GetByID(nil, id)
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.configs.Archive(tx, id)
	})
}
