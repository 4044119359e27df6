package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&monitor.Subject{},
		&monitor.Aspect{},
	); err != nil {
		return err
	}
	return EnsureMonitorIndexes(db)
}

// EnsureMonitorIndexes adds the expression/partial indexes AutoMigrate cannot
// express. The statements are valid on both postgres and sqlite.
func EnsureMonitorIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{
			// absolutePath is unique case-insensitively among live subjects.
			name: "idx_subject_absolute_path_live",
			sql: `
				CREATE UNIQUE INDEX IF NOT EXISTS idx_subject_absolute_path_live
				ON subject (lower(absolute_path))
				WHERE is_deleted = false;
			`,
		},
		{
			name: "idx_subject_parent_live",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_subject_parent_live
				ON subject (parent_id)
				WHERE is_deleted = false;
			`,
		},
		{
			name: "idx_aspect_name_live",
			sql: `
				CREATE UNIQUE INDEX IF NOT EXISTS idx_aspect_name_live
				ON aspect (lower(name))
				WHERE is_deleted = false;
			`,
		},
	}
	for _, st := range stmts {
		if err := db.Exec(st.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", st.name, err)
		}
	}
	return nil
}
