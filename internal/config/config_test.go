package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Port != 7012 {
		t.Errorf("缺省端口 = %d, want 7012", cfg.App.Port)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("缺省驱动 = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Solver.MaxLatticeCells != 200000 {
		t.Errorf("缺省变量格上限 = %d, want 200000", cfg.Solver.MaxLatticeCells)
	}
	if cfg.Jobs.QueueCapacity != 64 || cfg.Jobs.PoolSize != 4 {
		t.Errorf("缺省任务池配置 = %+v", cfg.Jobs)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("app:\n  port: 9000\nsolver:\n  default_workers: 8\ndatabase:\n  driver: sqlite\n  path: /tmp/jobs.db\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Port != 9000 {
		t.Errorf("YAML 端口 = %d, want 9000", cfg.App.Port)
	}
	if cfg.Solver.DefaultWorkers != 8 {
		t.Errorf("YAML 并发度 = %d, want 8", cfg.Solver.DefaultWorkers)
	}
	if cfg.Database.DSN() != "/tmp/jobs.db" {
		t.Errorf("sqlite DSN = %q, want /tmp/jobs.db", cfg.Database.DSN())
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  port: 9000\n"), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "9100")
	t.Setenv("SOLVER_DEFAULT_TIME_LIMIT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Port != 9100 {
		t.Errorf("环境变量应覆盖 YAML, port = %d, want 9100", cfg.App.Port)
	}
	if cfg.Solver.DefaultTimeLimit != 30*time.Second {
		t.Errorf("求解时限 = %v, want 30s", cfg.Solver.DefaultTimeLimit)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Error("指向不存在文件的 CONFIG_FILE 应报错")
	}
}

func TestPostgresDSN(t *testing.T) {
	c := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5433,
		User: "u", Password: "p", Name: "jobs", SSLMode: "disable",
	}
	want := "host=db port=5433 user=u password=p dbname=jobs sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
