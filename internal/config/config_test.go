package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
store:
  driver: mysql
  dsn: "ml:secret@tcp(10.0.0.5:3306)/modelyard?parseTime=true"
artifacts_dir: /srv/ml/artifacts
current_model_path: /srv/ml/artifacts/models/current.json
model_name: churn
server:
  host: 0.0.0.0
  port: 9090
log:
  level: debug
  format: json
  file: /var/log/modelyard.log
index:
  reconcile_schedule: "*/15 * * * *"
notify:
  slack:
    token: xoxb-test
    channel_id: C123
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store.Driver != "mysql" {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, "mysql")
	}
	if cfg.Store.Path != "" {
		t.Errorf("Store.Path = %q, want empty for mysql", cfg.Store.Path)
	}
	if cfg.ArtifactsDir != "/srv/ml/artifacts" {
		t.Errorf("ArtifactsDir = %q, want %q", cfg.ArtifactsDir, "/srv/ml/artifacts")
	}
	if cfg.ModelName != "churn" {
		t.Errorf("ModelName = %q, want %q", cfg.ModelName, "churn")
	}
	if cfg.Addr() != "0.0.0.0:9090" {
		t.Errorf("Addr() = %q, want %q", cfg.Addr(), "0.0.0.0:9090")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if cfg.Index.ReconcileSchedule != "*/15 * * * *" {
		t.Errorf("ReconcileSchedule = %q", cfg.Index.ReconcileSchedule)
	}
	if !cfg.Notify.Slack.Enabled() {
		t.Error("Notify.Slack.Enabled() = false, want true")
	}
	if cfg.Notify.Discord.Enabled() {
		t.Error("Notify.Discord.Enabled() = true, want false")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		field string
		got   string
		want  string
	}{
		{"Store.Driver", cfg.Store.Driver, "sqlite"},
		{"Store.Path", cfg.Store.Path, DefaultDBPath},
		{"ArtifactsDir", cfg.ArtifactsDir, DefaultArtifactsDir},
		{"CurrentModelPath", cfg.CurrentModelPath, DefaultCurrentModelPath},
		{"ModelName", cfg.ModelName, DefaultModelName},
		{"Server.Host", cfg.Server.Host, "127.0.0.1"},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "console"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.field, tt.got, tt.want)
		}
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown driver", "store:\n  driver: postgres\n", "store.driver"},
		{"mysql without dsn", "store:\n  driver: mysql\n", "store.dsn is required"},
		{"port out of range", "server:\n  port: 70000\n", "server.port"},
		{"bad log format", "log:\n  format: xml\n", "log.format"},
		{"model name with slash", "model_name: a/b\n", "model_name"},
		{"bad cron", "index:\n  reconcile_schedule: \"every minute\"\n", "reconcile_schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_MultipleErrorsJoined(t *testing.T) {
	_, err := Parse([]byte("store:\n  driver: mysql\nserver:\n  port: -1\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("expected errors joined with '; ', got %q", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("store: [unterminated"))
	if err == nil {
		t.Fatal("expected error for invalid yaml")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse prefix", err)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"MODELYARD_DB":            "/tmp/x/runs.db",
		"MODELYARD_ARTIFACTS":     "/tmp/x/artifacts",
		"MODELYARD_CURRENT_MODEL": "/tmp/x/current.json",
		"MODELYARD_MODEL_NAME":    "fraud",
		"MODELYARD_PORT":          "8123",
		"MODELYARD_LOG_LEVEL":     "warn",
		"MODELYARD_HOST":          "   ",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := parse([]byte("server:\n  host: 10.1.1.1\n"), lookup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Path != "/tmp/x/runs.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.ArtifactsDir != "/tmp/x/artifacts" {
		t.Errorf("ArtifactsDir = %q", cfg.ArtifactsDir)
	}
	if cfg.CurrentModelPath != "/tmp/x/current.json" {
		t.Errorf("CurrentModelPath = %q", cfg.CurrentModelPath)
	}
	if cfg.ModelName != "fraud" {
		t.Errorf("ModelName = %q", cfg.ModelName)
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("Server.Port = %d, want 8123", cfg.Server.Port)
	}
	if cfg.Server.Host != "10.1.1.1" {
		t.Errorf("Server.Host = %q, blank env should not override file", cfg.Server.Host)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestParse_EnvBadPort(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "MODELYARD_PORT" {
			return "eighty", true
		}
		return "", false
	}
	_, err := parse(nil, lookup)
	if err == nil || !strings.Contains(err.Error(), "MODELYARD_PORT") {
		t.Errorf("err = %v, want MODELYARD_PORT error", err)
	}
}

func TestCurrentModelPathFor(t *testing.T) {
	cfg, err := Parse([]byte("current_model_path: /srv/models/current.json\n"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want string
	}{
		{"", "/srv/models/current.json"},
		{"default", "/srv/models/current.json"},
		{"churn", "/srv/models/churn/current.json"},
	}
	for _, tt := range tests {
		if got := cfg.CurrentModelPathFor(tt.name); got != filepath.FromSlash(tt.want) {
			t.Errorf("CurrentModelPathFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MODELYARD_DB", filepath.Join(dir, "data", "runs.db"))
	t.Setenv("MODELYARD_ARTIFACTS", filepath.Join(dir, "art"))
	t.Setenv("MODELYARD_CURRENT_MODEL", filepath.Join(dir, "art", "models", "current.json"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}

	for _, d := range []string{"data", "art", filepath.Join("art", "models")} {
		info, err := os.Stat(filepath.Join(dir, d))
		if err != nil {
			t.Errorf("expected %s to exist: %v", d, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MODELYARD_ARTIFACTS", filepath.Join(dir, "art"))
	t.Setenv("MODELYARD_DB", filepath.Join(dir, "data", "runs.db"))
	t.Setenv("MODELYARD_CURRENT_MODEL", filepath.Join(dir, "art", "models", "current.json"))
	// godotenv does not override variables that are already set.
	os.Unsetenv("MODELYARD_MODEL_NAME")
	t.Cleanup(func() { os.Unsetenv("MODELYARD_MODEL_NAME") })

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MODELYARD_MODEL_NAME=from_dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(filepath.Join(dir, "modelyard.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ModelName != "from_dotenv" {
		t.Errorf("ModelName = %q, want from_dotenv", cfg.ModelName)
	}
}

func TestValidModelName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"default", true},
		{"churn-v2", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{"../../x", false},
		{`a\b`, false},
	}
	for _, tt := range tests {
		if got := ValidModelName(tt.name); got != tt.want {
			t.Errorf("ValidModelName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
