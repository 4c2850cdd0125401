package models

import "gorm.io/gorm"

// All returns every model that AutoMigrate manages.
func All() []any {
	return []any{
		&User{},
		&Project{},
		&File{},
		&FileVersion{},
		&ProjectSnapshot{},
		&SnapshotFile{},
		&APIKey{},
		&UsageLog{},
		&GenerationSession{},
	}
}

// Migrate creates or updates the schema, then applies the SQL AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	if err := enableUUIDExtension(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(All()...); err != nil {
		return err
	}
	for _, m := range []func(*gorm.DB) error{
		addFilePathIndex,
		addActiveSessionIndex,
	} {
		if err := m(db); err != nil {
			return err
		}
	}
	return nil
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// live file paths are unique per project; soft-deleted rows don't count
func addFilePathIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_files_project_path
		ON files(project_id, path)
		WHERE deleted_at IS NULL
	`).Error
}

// at most one running or paused session per project
func addActiveSessionIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_generation_sessions_active_project
		ON generation_sessions(project_id)
		WHERE status IN ('running', 'paused')
	`).Error
}
