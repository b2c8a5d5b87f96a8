// Package manifest maintains the file-based run index under
// <artifacts>/runs: one manifest per run directory, a run_id pointer per run
// and a single latest-run pointer. The run store stays authoritative; the
// index can be rebuilt from it.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/zulandar/modelyard/internal/fsutil"
)

// Run statuses written to manifests.
const (
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusReconciled = "reconciled"
)

const (
	runsDir      = "runs"
	byIDDir      = "_by_id"
	latestFile   = "_latest.json"
	manifestFile = "manifest.json"
)

// Pointer maps a run_id to its run directory and manifest.
type Pointer struct {
	RunID        string `json:"run_id"`
	RunDirName   string `json:"run_dir_name"`
	ManifestPath string `json:"manifest_path"`
	CreatedAt    string `json:"created_at"`
}

// Manifest is the per-run summary document.
type Manifest struct {
	RunID        string             `json:"run_id"`
	RunDirName   string             `json:"run_dir_name"`
	CreatedAt    string             `json:"created_at"`
	Kind         string             `json:"kind"`
	Status       string             `json:"status"`
	ArtifactsDir string             `json:"artifacts_dir"`
	DBPath       string             `json:"db_path"`
	Metrics      map[string]float64 `json:"metrics"`
}

// Index reads and writes the pointer files below an artifacts root.
type Index struct {
	root string
	now  func() time.Time
}

// New returns an Index rooted at the artifacts directory.
func New(artifactsRoot string) *Index {
	return &Index{root: artifactsRoot, now: time.Now}
}

// RunsDir is <artifacts>/runs.
func (x *Index) RunsDir() string { return filepath.Join(x.root, runsDir) }

// RunDir returns the directory for a run directory name.
func (x *Index) RunDir(runDirName string) string {
	return filepath.Join(x.RunsDir(), runDirName)
}

func (x *Index) pointerPath(runID string) string {
	return filepath.Join(x.RunsDir(), byIDDir, runID+".json")
}

func (x *Index) latestPath() string {
	return filepath.Join(x.RunsDir(), latestFile)
}

// WriteOpts describes a manifest to write.
type WriteOpts struct {
	RunID         string
	Kind          string
	Status        string
	Metrics       map[string]float64
	StoreLocation string
	// RunDirName is derived from CreatedAt, Kind and RunID when empty.
	RunDirName string
	// CreatedAt defaults to now.
	CreatedAt time.Time
	// SkipLatest leaves _latest.json untouched.
	SkipLatest bool
}

// Write creates the run directory, writes its manifest, the run_id pointer
// and (unless SkipLatest) the latest pointer. It returns the manifest path.
func (x *Index) Write(opts WriteOpts) (string, error) {
	if err := validRunID(opts.RunID); err != nil {
		return "", err
	}
	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = x.now()
	}
	createdAt = createdAt.UTC()

	dirName := opts.RunDirName
	if dirName == "" {
		dirName = RunDirName(createdAt, opts.Kind, opts.RunID)
	}
	if strings.ContainsAny(dirName, `/\`) || dirName == "." || dirName == ".." {
		return "", fmt.Errorf("manifest: invalid run dir name %q", dirName)
	}

	runDir := x.RunDir(dirName)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("manifest: create run dir: %w", err)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	stamp := createdAt.Format(time.RFC3339Nano)
	manifestPath := filepath.Join(runDir, manifestFile)

	doc := Manifest{
		RunID:        opts.RunID,
		RunDirName:   dirName,
		CreatedAt:    stamp,
		Kind:         opts.Kind,
		Status:       opts.Status,
		ArtifactsDir: filepath.ToSlash(runDir),
		DBPath:       opts.StoreLocation,
		Metrics:      metrics,
	}
	if err := fsutil.WriteJSONAtomic(manifestPath, doc); err != nil {
		return "", fmt.Errorf("manifest: write manifest: %w", err)
	}

	ptr := Pointer{
		RunID:        opts.RunID,
		RunDirName:   dirName,
		ManifestPath: filepath.ToSlash(manifestPath),
		CreatedAt:    stamp,
	}
	if err := fsutil.WriteJSONAtomic(x.pointerPath(opts.RunID), ptr); err != nil {
		return "", fmt.Errorf("manifest: write pointer: %w", err)
	}
	if !opts.SkipLatest {
		if err := x.writeLatest(ptr); err != nil {
			return "", err
		}
	}
	return manifestPath, nil
}

func (x *Index) writeLatest(ptr Pointer) error {
	if err := fsutil.WriteJSONAtomic(x.latestPath(), ptr); err != nil {
		return fmt.Errorf("manifest: write latest pointer: %w", err)
	}
	return nil
}

// ReadPointer returns the pointer for runID. Missing and unreadable files
// both report ok=false.
func (x *Index) ReadPointer(runID string) (*Pointer, bool) {
	if validRunID(runID) != nil {
		return nil, false
	}
	return readPointer(x.pointerPath(runID))
}

// ReadLatestPointer returns the latest-run pointer, or ok=false.
func (x *Index) ReadLatestPointer() (*Pointer, bool) {
	return readPointer(x.latestPath())
}

// LatestRunID returns the run_id of the latest pointer.
func (x *Index) LatestRunID() (string, bool) {
	p, ok := x.ReadLatestPointer()
	if !ok || p.RunID == "" {
		return "", false
	}
	return p.RunID, true
}

func readPointer(path string) (*Pointer, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var p Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	return &p, true
}

// ReadManifest loads a manifest document, or ok=false when it is missing
// or unreadable.
func ReadManifest(path string) (*Manifest, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return &m, true
}

// RunDirName builds YYYYMMDD_HHMMSS_<slug(kind)>_<first 8 alnum of runID>.
func RunDirName(createdAt time.Time, kind, runID string) string {
	short := make([]rune, 0, 8)
	for _, r := range runID {
		if len(short) == 8 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			short = append(short, r)
		}
	}
	parts := []string{createdAt.UTC().Format("20060102_150405"), Slug(kind)}
	if len(short) > 0 {
		parts = append(parts, string(short))
	}
	return strings.Join(parts, "_")
}

// Slug lowercases s and collapses every run of characters outside
// [a-z0-9] into a single underscore. An empty result becomes "run".
func Slug(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "run"
	}
	return b.String()
}

func validRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("manifest: run_id is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return fmt.Errorf("manifest: invalid run_id %q", runID)
	}
	return nil
}
