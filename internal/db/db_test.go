package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/seamly/stitch/internal/config"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		pass     string
		host     string
		port     int
		database string
		want     string
	}{
		{
			name:     "default local",
			user:     "root",
			host:     "127.0.0.1",
			port:     3306,
			database: "stitch",
			want:     "root@tcp(127.0.0.1:3306)/stitch?parseTime=true",
		},
		{
			name:     "with password",
			user:     "stitch",
			pass:     "hunter2",
			host:     "10.0.0.5",
			port:     3307,
			database: "stitch_prod",
			want:     "stitch:hunter2@tcp(10.0.0.5:3307)/stitch_prod?parseTime=true",
		},
		{
			name: "admin without database",
			user: "root",
			host: "db.internal",
			port: 3306,
			want: "root@tcp(db.internal:3306)/?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.pass, tt.host, tt.port, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDSN_ParseTimeFlag(t *testing.T) {
	dsn := DSN("root", "", "localhost", 3306, "test")
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", dsn)
	}
}

func TestConnect_Sqlite(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(dir, "stitch.db"),
	}
	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestConnect_SqliteCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(dir, "nested", "deep", "stitch.db"),
	}
	if _, err := Connect(cfg); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "unsupported driver")
	}
}

func TestConnect_MysqlError(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	cfg := config.DatabaseConfig{
		Driver: "mysql",
		User:   "root",
		Host:   "127.0.0.1",
		Port:   1,
		Name:   "nonexistent",
	}
	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect to")
	}
}

func TestConnectAdmin_Error(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver: "mysql",
		User:   "root",
		Host:   "127.0.0.1",
		Port:   1,
	}
	_, err := ConnectAdmin(cfg)
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: admin connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: admin connect to")
	}
}

func TestAllModels_Count(t *testing.T) {
	models := AllModels()
	if len(models) != 4 {
		t.Errorf("AllModels() returned %d models, want 4", len(models))
	}
}

func TestAutoMigrate_Sqlite(t *testing.T) {
	dir := t.TempDir()
	db, err := Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(dir, "stitch.db"),
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	expectedTables := []string{
		"repositories",
		"coverage_files",
		"jobs",
		"agent_runs",
	}
	for _, tbl := range expectedTables {
		if !db.Migrator().HasTable(tbl) {
			t.Errorf("expected table %q not found", tbl)
		}
	}
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(dir, "stitch.db"),
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate (1st): %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate (2nd): %v", err)
	}
}

func TestAutoMigrate_Error(t *testing.T) {
	dir := t.TempDir()
	db, err := Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(dir, "stitch.db"),
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.Close()

	err = AutoMigrate(db)
	if err == nil {
		t.Fatal("expected error from AutoMigrate with closed DB")
	}
	if !strings.Contains(err.Error(), "db: auto-migrate") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: auto-migrate")
	}
}
