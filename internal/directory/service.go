// Package directory is the organization directory service: departments,
// positions, their linkage and profiles. Every mutation runs in one
// transaction that ends with a synchronous reconciliation sweep, so routing
// templates and in-flight activities are never observably out of sync with
// the directory.
package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moxworks/auditflow/internal/models"
	"github.com/moxworks/auditflow/internal/workflow"
	"go.uber.org/zap"
)

// DepartmentStore persists departments.
type DepartmentStore interface {
	Create(tx *sql.Tx, dept *models.Department) error
	GetByID(tx *sql.Tx, id int64) (*models.Department, error)
	ListChildren(tx *sql.Tx, parentID int64) ([]*models.Department, error)
	List(tx *sql.Tx) ([]*models.Department, error)
	Archive(tx *sql.Tx, id int64) error
}

// PositionStore persists positions.
type PositionStore interface {
	Create(tx *sql.Tx, pos *models.Position) error
	GetByID(tx *sql.Tx, id int64) (*models.Position, error)
	List(tx *sql.Tx) ([]*models.Position, error)
	Archive(tx *sql.Tx, id int64) error
}

// LinkStore persists the department-position linkage.
type LinkStore interface {
	Link(tx *sql.Tx, departmentID, positionID int64) error
	Unlink(tx *sql.Tx, departmentID, positionID int64) error
	UnlinkDepartment(tx *sql.Tx, departmentID int64) error
	Exists(tx *sql.Tx, departmentID, positionID int64) (bool, error)
}

// ProfileStore persists profiles.
type ProfileStore interface {
	Create(tx *sql.Tx, p *models.Profile) error
	GetByID(tx *sql.Tx, id int64) (*models.Profile, error)
	UpdateAssignment(tx *sql.Tx, id int64, departmentID, positionID *int64) error
	DetachPosition(tx *sql.Tx, positionID int64) error
	Archive(tx *sql.Tx, id int64) error
}

// Reconciler re-synchronizes workflows after a directory mutation.
type Reconciler interface {
	Reconcile(ctx context.Context, tx *sql.Tx) error
}

// Service exposes the directory mutations.
type Service struct {
	db          workflow.TxRunner
	departments DepartmentStore
	positions   PositionStore
	links       LinkStore
	profiles    ProfileStore
	reconciler  Reconciler
	logger      *zap.Logger
}

// NewService creates a directory service
func NewService(
	db workflow.TxRunner,
	departments DepartmentStore,
	positions PositionStore,
	links LinkStore,
	profiles ProfileStore,
	reconciler Reconciler,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:          db,
		departments: departments,
		positions:   positions,
		links:       links,
		profiles:    profiles,
		reconciler:  reconciler,
		logger:      logger,
	}
}

// CreateDepartment adds a department under an optional parent. The tree
// stays acyclic because nodes only ever attach beneath existing ones.
func (s *Service) CreateDepartment(ctx context.Context, code, name string, parentID *int64) (*models.Department, error) {
	if name == "" {
		return nil, fmt.Errorf("department name is required: %w", workflow.ErrInvalidState)
	}
	if parentID != nil {
		parent, err := s.departments.GetByID(nil, *parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.Archived {
			return nil, fmt.Errorf("parent department %d: %w", *parentID, workflow.ErrNotFound)
		}
	}

	dept := &models.Department{Code: code, Name: name, ParentID: parentID}
	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.departments.Create(tx, dept)
	})
	if err != nil {
		return nil, err
	}
	return dept, nil
}

// ArchiveDepartment archives a department and its whole subtree, removes
// their linkages and reconciles.
func (s *Service) ArchiveDepartment(ctx context.Context, id int64) error {
	dept, err := s.departments.GetByID(nil, id)
	if err != nil {
		return err
	}
	if dept == nil || dept.Archived {
		return fmt.Errorf("department %d: %w", id, workflow.ErrNotFound)
	}

	return s.db.WithTransaction(func(tx *sql.Tx) error {
		subtree, err := s.collectSubtree(tx, id)
		if err != nil {
			return err
		}
		for _, deptID := range subtree {
			if err := s.links.UnlinkDepartment(tx, deptID); err != nil {
				return err
			}
			if err := s.departments.Archive(tx, deptID); err != nil {
				return err
			}
		}
		s.logger.Info("Department subtree archived",
			zap.Int64("department_id", id),
			zap.Int("archived", len(subtree)))
		return s.reconciler.Reconcile(ctx, tx)
	})
}

// collectSubtree returns the department and all its descendants, parents
// before children.
func (s *Service) collectSubtree(tx *sql.Tx, rootID int64) ([]int64, error) {
	ids := []int64{rootID}
	for i := 0; i < len(ids); i++ {
		children, err := s.departments.ListChildren(tx, ids[i])
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			ids = append(ids, child.ID)
		}
	}
	return ids, nil
}

// CreatePosition adds a position.
func (s *Service) CreatePosition(ctx context.Context, code, name string) (*models.Position, error) {
	if name == "" {
		return nil, fmt.Errorf("position name is required: %w", workflow.ErrInvalidState)
	}
	pos := &models.Position{Code: code, Name: name}
	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		return s.positions.Create(tx, pos)
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// ArchivePosition archives a position, detaches its current holders and
// reconciles. The linkage stays in place: templates routing through the
// position go abnormal, but the slot can be re-staffed later, which restores
// any activities stranded on it.
func (s *Service) ArchivePosition(ctx context.Context, id int64) error {
	pos, err := s.positions.GetByID(nil, id)
	if err != nil {
		return err
	}
	if pos == nil || pos.Archived {
		return fmt.Errorf("position %d: %w", id, workflow.ErrNotFound)
	}

	return s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.positions.Archive(tx, id); err != nil {
			return err
		}
		if err := s.profiles.DetachPosition(tx, id); err != nil {
			return err
		}
		return s.reconciler.Reconcile(ctx, tx)
	})
}

// Link adds a department-position pair and reconciles, which may recover
// templates broken by an earlier unlink.
func (s *Service) Link(ctx context.Context, departmentID, positionID int64) error {
	if err := s.checkPair(departmentID, positionID); err != nil {
		return err
	}
	return s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.links.Link(tx, departmentID, positionID); err != nil {
			return err
		}
		return s.reconciler.Reconcile(ctx, tx)
	})
}

// Unlink removes a department-position pair and reconciles.
func (s *Service) Unlink(ctx context.Context, departmentID, positionID int64) error {
	return s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.links.Unlink(tx, departmentID, positionID); err != nil {
			return err
		}
		return s.reconciler.Reconcile(ctx, tx)
	})
}

// CreateProfile adds a person and reconciles, since an arrival may restore
// aborted activities waiting on the pair.
func (s *Service) CreateProfile(ctx context.Context, name string, departmentID, positionID *int64) (*models.Profile, error) {
	if name == "" {
		return nil, fmt.Errorf("profile name is required: %w", workflow.ErrInvalidState)
	}
	if err := s.checkAssignment(departmentID, positionID); err != nil {
		return nil, err
	}

	p := &models.Profile{Name: name, DepartmentID: departmentID, PositionID: positionID}
	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.profiles.Create(tx, p); err != nil {
			return err
		}
		return s.reconciler.Reconcile(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MoveProfile changes a profile's department/position pair and reconciles.
func (s *Service) MoveProfile(ctx context.Context, id int64, departmentID, positionID *int64) error {
	p, err := s.profiles.GetByID(nil, id)
	if err != nil {
		return err
	}
	if p == nil || p.Archived {
		return fmt.Errorf("profile %d: %w", id, workflow.ErrNotFound)
	}
	if err := s.checkAssignment(departmentID, positionID); err != nil {
		return err
	}

	return s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.profiles.UpdateAssignment(tx, id, departmentID, positionID); err != nil {
			return err
		}
		return s.reconciler.Reconcile(ctx, tx)
	})
}

// ArchiveProfile records a departure and reconciles.
func (s *Service) ArchiveProfile(ctx context.Context, id int64) error {
	p, err := s.profiles.GetByID(nil, id)
	if err != nil {
		return err
	}
	if p == nil || p.Archived {
		return fmt.Errorf("profile %d: %w", id, workflow.ErrNotFound)
	}

	return s.db.WithTransaction(func(tx *sql.Tx) error {
		if err := s.profiles.Archive(tx, id); err != nil {
			return err
		}
		return s.reconciler.Reconcile(ctx, tx)
	})
}

// ListDepartments returns all non-archived departments.
func (s *Service) ListDepartments(ctx context.Context) ([]*models.Department, error) {
	return s.departments.List(nil)
}

// ListPositions returns all non-archived positions.
func (s *Service) ListPositions(ctx context.Context) ([]*models.Position, error) {
	return s.positions.List(nil)
}

// checkAssignment validates a profile's target pair. The department must
// exist unarchived; the position only has to exist, since a retired position
// can be re-staffed to revive workflows stranded on it.
func (s *Service) checkAssignment(departmentID, positionID *int64) error {
	if departmentID != nil {
		dept, err := s.departments.GetByID(nil, *departmentID)
		if err != nil {
			return err
		}
		if dept == nil || dept.Archived {
			return fmt.Errorf("department %d: %w", *departmentID, workflow.ErrNotFound)
		}
	}
	if positionID != nil {
		pos, err := s.positions.GetByID(nil, *positionID)
		if err != nil {
			return err
		}
		if pos == nil {
			return fmt.Errorf("position %d: %w", *positionID, workflow.ErrNotFound)
		}
	}
	return nil
}

func (s *Service) checkPair(departmentID, positionID int64) error {
	dept, err := s.departments.GetByID(nil, departmentID)
	if err != nil {
		return err
	}
	if dept == nil || dept.Archived {
		return fmt.Errorf("department %d: %w", departmentID, workflow.ErrNotFound)
	}
	pos, err := s.positions.GetByID(nil, positionID)
	if err != nil {
		return err
	}
	if pos == nil || pos.Archived {
		return fmt.Errorf("position %d: %w", positionID, workflow.ErrNotFound)
	}
	return nil
}
