package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/modelyard/internal/tracking"
)

// execCmd runs the root command with args and returns stdout and the error.
func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig creates a config file whose paths all live in a temp dir.
func writeConfig(t *testing.T) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	body := fmt.Sprintf(`store:
  path: %q
artifacts_dir: %q
current_model_path: %q
log:
  level: warn
`, filepath.Join(dir, "data", "runs.db"), filepath.Join(dir, "artifacts"), filepath.Join(dir, "artifacts", "models", "current.json"))
	path = filepath.Join(dir, "modelyard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, dir
}

func TestVersionCmd(t *testing.T) {
	out, err := execCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "yard dev") {
		t.Errorf("expected output to contain 'yard dev', got: %s", out)
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execCmd(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json failed: %v", err)
	}
	var b map[string]any
	if err := json.Unmarshal([]byte(out), &b); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if b["service"] != "modelyard-api" {
		t.Errorf("service = %v", b["service"])
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := execCmd(t, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"version", "db", "run", "train", "promote", "serve", "dashboard", "index", "smoke", "e2e"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q subcommand", sub)
		}
	}
}

func TestConfigFlagEverywhere(t *testing.T) {
	paths := [][]string{
		{"db", "init"}, {"run", "demo"}, {"run", "list"}, {"run", "show"}, {"run", "latest"},
		{"train", "dummy"}, {"train", "logistic"}, {"promote"}, {"serve"}, {"dashboard"},
		{"index", "rebuild"}, {"smoke"}, {"e2e"},
	}
	for _, p := range paths {
		out, err := execCmd(t, append(p, "--help")...)
		if err != nil {
			t.Fatalf("%v --help: %v", p, err)
		}
		if !strings.Contains(out, "--config") || !strings.Contains(out, "modelyard.yaml") {
			t.Errorf("%v: help should document --config with default modelyard.yaml", p)
		}
	}
}

func TestPromoteCmd_RequiresExactlyOneSelector(t *testing.T) {
	cfg, _ := writeConfig(t)
	if _, err := execCmd(t, "promote", "-c", cfg); err == nil {
		t.Error("expected error without --run-id or --latest")
	}
	if _, err := execCmd(t, "promote", "-c", cfg, "--run-id", "x", "--latest"); err == nil {
		t.Error("expected error with both --run-id and --latest")
	}
}

func TestEndToEnd(t *testing.T) {
	cfg, dir := writeConfig(t)

	out, err := execCmd(t, "db", "init", "-c", cfg)
	if err != nil {
		t.Fatalf("db init: %v", err)
	}
	if !strings.Contains(out, "Migrated 4 tables") {
		t.Errorf("db init output: %s", out)
	}

	out, err = execCmd(t, "run", "demo", "-c", cfg)
	if err != nil {
		t.Fatalf("run demo: %v", err)
	}
	demoID := strings.TrimSpace(strings.TrimPrefix(out, "Demo run inserted:"))

	out, err = execCmd(t, "train", "dummy", "-c", cfg, "--json", "--no-auto-promote")
	if err != nil {
		t.Fatalf("train dummy: %v", err)
	}
	var res struct {
		RunID    string `json:"run_id"`
		Promoted bool   `json:"promoted"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("train output is not JSON: %v\n%s", err, out)
	}
	if res.Promoted {
		t.Error("--no-auto-promote should not promote")
	}

	out, err = execCmd(t, "run", "list", "-c", cfg, "--metrics")
	if err != nil {
		t.Fatalf("run list: %v", err)
	}
	for _, want := range []string{demoID, res.RunID, "bal_acc="} {
		if !strings.Contains(out, want) {
			t.Errorf("run list missing %q:\n%s", want, out)
		}
	}

	out, err = execCmd(t, "promote", "-c", cfg, "--latest")
	if err != nil {
		t.Fatalf("promote --latest: %v", err)
	}
	if !strings.Contains(out, "Promoted run "+res.RunID) {
		t.Errorf("promote output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "artifacts", "models", "current.json")); err != nil {
		t.Errorf("current model not written: %v", err)
	}

	if _, err := execCmd(t, "promote", "-c", cfg, "--run-id", demoID); err == nil || !strings.Contains(err.Error(), "no model artifact") {
		t.Errorf("promote demo run: err = %v, want no model artifact", err)
	}
	if _, err := execCmd(t, "promote", "-c", cfg, "--run-id", "nope"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("promote unknown run: err = %v", err)
	}
	if _, err := execCmd(t, "promote", "-c", cfg, "--run-id", res.RunID, "--model-path", filepath.Join(dir, "missing.json")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("promote missing file: err = %v", err)
	}

	out, err = execCmd(t, "run", "show", res.RunID, "-c", cfg)
	if err != nil {
		t.Fatalf("run show: %v", err)
	}
	if !strings.Contains(out, "model_current") {
		t.Errorf("run show should list the model_current artifact:\n%s", out)
	}

	out, err = execCmd(t, "run", "latest", "-c", cfg)
	if err != nil {
		t.Fatalf("run latest: %v", err)
	}
	if !strings.Contains(out, res.RunID) {
		t.Errorf("run latest = %s, want %s", out, res.RunID)
	}

	out, err = execCmd(t, "index", "rebuild", "-c", cfg)
	if err != nil {
		t.Fatalf("index rebuild: %v", err)
	}
	if !strings.Contains(out, "Scanned 2 runs, wrote 1 pointers") {
		t.Errorf("index rebuild output: %s", out)
	}
}

func TestRunLatest_Empty(t *testing.T) {
	cfg, _ := writeConfig(t)
	if _, err := execCmd(t, "run", "latest", "-c", cfg); err == nil {
		t.Error("expected error with no runs")
	}
}

func TestSmokeCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Write([]byte(`{"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	if _, err := execCmd(t, "smoke", "--base-url", srv.URL); err != nil {
		t.Errorf("smoke with 404 predict should pass by default: %v", err)
	}
	if _, err := execCmd(t, "smoke", "--base-url", srv.URL, "--fail-on-predict-404"); err == nil {
		t.Error("smoke --fail-on-predict-404 should fail")
	}
}

func TestPickModelArtifact(t *testing.T) {
	tests := []struct {
		name      string
		artifacts []tracking.ArtifactRecord
		want      string
		ok        bool
	}{
		{"none", nil, "", false},
		{"candidate wins", []tracking.ArtifactRecord{
			{Kind: "model", Path: "m"}, {Kind: "model_current", Path: "cur"}, {Kind: "model_candidate", Path: "cand"},
		}, "cand", true},
		{"current before model", []tracking.ArtifactRecord{
			{Kind: "model", Path: "m"}, {Kind: "model_current", Path: "cur"},
		}, "cur", true},
		{"fallback to first", []tracking.ArtifactRecord{
			{Kind: "dataset_meta", Path: "d"}, {Kind: "report", Path: "r"},
		}, "d", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickModelArtifact(tt.artifacts)
			if got != tt.want || ok != tt.ok {
				t.Errorf("pickModelArtifact() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFormatMetrics(t *testing.T) {
	if got := formatMetrics(nil); got != "-" {
		t.Errorf("formatMetrics(nil) = %q", got)
	}
	got := formatMetrics(map[string]float64{"recall_1": 0.5, "acc": 0.25})
	if got != "acc=0.2500 recall_1=0.5000" {
		t.Errorf("formatMetrics() = %q", got)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestE2ECmd(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		want    []string
	}{
		{
			name: "train auto-promotes and serves",
			want: []string{"promoted=true", "/predict OK", "[e2e] OK"},
		},
		{
			name: "no auto-promote falls back to latest run",
			args: []string{"--no-auto-promote"},
			want: []string{"promoted=false", "promoting latest run", "[e2e] OK"},
		},
		{
			name: "skip serve stops after current model",
			args: []string{"--skip-serve"},
			want: []string{"skip serve and smoke", "[e2e] done."},
		},
		{
			name:    "skip train on empty store",
			args:    []string{"--skip-train"},
			wantErr: "no runs recorded yet",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, dir := writeConfig(t)
			args := append([]string{"e2e", "-c", cfg,
				"--host", "127.0.0.1",
				"--port", fmt.Sprint(freePort(t)),
				"--retries", "40",
				"--retry-delay", "50ms",
			}, tt.args...)

			out, err := execCmd(t, args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("e2e: %v\n%s", err, out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			if _, err := os.Stat(filepath.Join(dir, "artifacts", "models", "current.json")); err != nil {
				t.Errorf("current model not written: %v", err)
			}
		})
	}
}
