package database

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Migration is one schema migration, applied at most once and tracked in
// schema_migrations.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered, embedded schema history.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "organization_directory",
		SQL: `
			CREATE TABLE departments (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				code TEXT,
				name TEXT NOT NULL,
				parent_id INTEGER REFERENCES departments(id),
				archived INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE positions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				code TEXT,
				name TEXT NOT NULL,
				archived INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE department_positions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				department_id INTEGER NOT NULL REFERENCES departments(id),
				position_id INTEGER NOT NULL REFERENCES positions(id),
				UNIQUE (department_id, position_id)
			);

			CREATE TABLE profiles (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				department_id INTEGER REFERENCES departments(id),
				position_id INTEGER REFERENCES positions(id),
				archived INTEGER NOT NULL DEFAULT 0,
				blocked INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
	{
		Version: 2,
		Name:    "routing_templates",
		SQL: `
			CREATE TABLE audit_configs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				category TEXT NOT NULL,
				subtype TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				fallback INTEGER NOT NULL DEFAULT 0,
				need_task INTEGER NOT NULL DEFAULT 0,
				abnormal INTEGER NOT NULL DEFAULT 0,
				archived INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_audit_configs_subtype ON audit_configs(subtype, archived);

			CREATE TABLE audit_config_steps (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				config_id INTEGER NOT NULL REFERENCES audit_configs(id),
				position INTEGER NOT NULL,
				department_id INTEGER REFERENCES departments(id),
				position_id INTEGER REFERENCES positions(id),
				abnormal INTEGER NOT NULL DEFAULT 0,
				UNIQUE (config_id, position)
			);

			CREATE TABLE audit_config_conditions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				config_id INTEGER NOT NULL REFERENCES audit_configs(id),
				prop TEXT NOT NULL,
				operator TEXT NOT NULL,
				value TEXT NOT NULL
			);
		`,
	},
	{
		Version: 3,
		Name:    "activities_and_steps",
		SQL: `
			CREATE TABLE audit_activities (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				seq_num TEXT NOT NULL,
				config_id INTEGER NOT NULL REFERENCES audit_configs(id),
				category TEXT NOT NULL,
				subtype TEXT NOT NULL,
				creator_id INTEGER NOT NULL REFERENCES profiles(id),
				extra TEXT NOT NULL DEFAULT '{}',
				state TEXT NOT NULL DEFAULT 'draft',
				task_state TEXT NOT NULL DEFAULT '',
				archived INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				finished_at DATETIME
			);
			CREATE INDEX idx_audit_activities_state ON audit_activities(state, archived);
			CREATE INDEX idx_audit_activities_creator ON audit_activities(creator_id, archived);

			CREATE TABLE audit_steps (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				activity_id INTEGER NOT NULL REFERENCES audit_activities(id),
				position INTEGER NOT NULL,
				assignee_id INTEGER NOT NULL REFERENCES profiles(id),
				department_id INTEGER NOT NULL REFERENCES departments(id),
				position_id INTEGER NOT NULL REFERENCES positions(id),
				state TEXT NOT NULL DEFAULT 'pending',
				active INTEGER NOT NULL DEFAULT 0,
				abnormal INTEGER NOT NULL DEFAULT 0,
				note TEXT NOT NULL DEFAULT '',
				activated_at DATETIME,
				finished_at DATETIME,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (activity_id, position)
			);
			CREATE INDEX idx_audit_steps_assignee ON audit_steps(assignee_id, state);

			CREATE TABLE activity_counters (
				day TEXT PRIMARY KEY,
				counter INTEGER NOT NULL DEFAULT 0
			);
		`,
	},
	{
		Version: 4,
		Name:    "notifications_and_bank_accounts",
		SQL: `
			CREATE TABLE notifications (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				profile_id INTEGER NOT NULL REFERENCES profiles(id),
				activity_id INTEGER NOT NULL REFERENCES audit_activities(id),
				step_id INTEGER REFERENCES audit_steps(id),
				category TEXT NOT NULL,
				payload TEXT NOT NULL DEFAULT '{}',
				is_read INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_notifications_profile ON notifications(profile_id, is_read);

			CREATE TABLE bank_accounts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				profile_id INTEGER NOT NULL REFERENCES profiles(id),
				name TEXT NOT NULL,
				bank TEXT NOT NULL,
				number TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (profile_id, name, bank, number)
			);
		`,
	},
}

// Migrator applies pending embedded migrations
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

func (m *Migrator) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := m.db.Exec(query)
	return err
}

func (m *Migrator) getAppliedMigrations() (map[int]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// RunMigrations applies every embedded migration that has not been applied
// yet, each inside its own transaction.
func (m *Migrator) RunMigrations() error {
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending := make([]Migration, 0, len(migrations))
	for _, mig := range migrations {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, mig := range pending {
		m.logger.Info("Applying migration",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name))

		if err := m.apply(mig); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", mig.Version, mig.Name, err)
		}
	}

	m.logger.Info("Migrations complete", zap.Int("applied", len(pending)))
	return nil
}

func (m *Migrator) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(mig.SQL); err != nil {
		_ = tx.Rollback()
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		mig.Version, mig.Name,
	); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
