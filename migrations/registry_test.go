package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	provision "github.com/goliatone/go-provision"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestProvisionCoreMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := provision.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/20260301000000_provision_core.up.sql",
		"data/sql/migrations/20260301000000_provision_core.down.sql",
		"data/sql/migrations/sqlite/20260301000000_provision_core.up.sql",
		"data/sql/migrations/sqlite/20260301000000_provision_core.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteProvisionCoreMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-provision-core?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := provision.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "20260301000000_provision_core.up.sql"); err != nil {
		t.Fatalf("apply provision core migration: %v", err)
	}

	insertResource := `INSERT INTO provision_resources
		(id, order_ref, user_id, driver_id, plan_code, status)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertResource,
		"res-1", "ord-1", "user-1", "fake", "vps-small", "pending",
	); err != nil {
		t.Fatalf("insert resource: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertResource,
		"res-2", "ord-1", "user-1", "fake", "vps-small", "pending",
	); err == nil {
		t.Fatalf("expected order_ref uniqueness violation")
	}

	insertTask := `INSERT INTO provision_tasks
		(id, resource_id, action, status)
		VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertTask, "task-1", "res-1", "provision", "pending"); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertTask, "task-2", "res-1", "provision", "pending"); err == nil {
		t.Fatalf("expected single-flight uniqueness violation for pending provision task")
	}
	if _, err := db.ExecContext(ctx, insertTask, "task-3", "res-1", "suspend", "pending"); err != nil {
		t.Fatalf("insert task for other action: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		"UPDATE provision_tasks SET status = 'completed' WHERE id = ?", "task-1",
	); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertTask, "task-4", "res-1", "provision", "pending"); err != nil {
		t.Fatalf("expected new pending task after completion, got: %v", err)
	}

	insertPlanMap := `INSERT INTO provision_plan_maps
		(id, plan_code, driver_id, provider_plan, active)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertPlanMap, "plan-1", "vps-small", "fake", "compute.small", 1); err != nil {
		t.Fatalf("insert plan map: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertPlanMap, "plan-2", "vps-small", "fake", "compute.small.v2", 1); err == nil {
		t.Fatalf("expected active plan map uniqueness violation")
	}
	if _, err := db.ExecContext(ctx, insertPlanMap, "plan-3", "vps-small", "fake", "compute.small.v2", 0); err != nil {
		t.Fatalf("insert inactive plan map: %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "20260301000000_provision_core.down.sql"); err != nil {
		t.Fatalf("apply provision core migration down: %v", err)
	}

	var tableCount int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'provision_%'",
	).Scan(&tableCount); err != nil {
		t.Fatalf("count provision tables: %v", err)
	}
	if tableCount != 0 {
		t.Fatalf("expected provision tables dropped, found %d", tableCount)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
