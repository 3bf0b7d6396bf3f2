// Package artifacts persists trained model sets as immutable versions and
// activates them atomically through a CURRENT pointer.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/YassChaai/SmartCare-Analytics/internal/eval"
	"github.com/YassChaai/SmartCare-Analytics/internal/logging"
	"github.com/YassChaai/SmartCare-Analytics/internal/models"
	"github.com/YassChaai/SmartCare-Analytics/pkg/otel"
)

var (
	// ErrMissingArtifact is returned when a version, model, manifest or the
	// CURRENT pointer is absent.
	ErrMissingArtifact = errors.New("missing artifact")
	// ErrFeatureMismatch is returned when a model was fitted on columns that
	// differ from the stored feature manifest.
	ErrFeatureMismatch = errors.New("feature columns do not match model")
	// ErrIntegrity is returned when a file no longer matches its recorded hash.
	ErrIntegrity = errors.New("artifact integrity check failed")
)

// File names inside a version directory.
const (
	ColumnsFile  = "feature_columns.json"
	MetricsFile  = "metrics.json"
	ManifestFile = "manifest.json"
	CurrentFile  = "CURRENT"
	versionsDir  = "versions"
	modelSuffix  = ".model.json"
)

// Set is a trained model set ready to persist.
type Set struct {
	Columns      []string
	Report       eval.Report
	Models       map[string]models.Regressor
	DefaultModel string
	TrainedAt    time.Time
	TrainRows    int
	TestRows     int
}

// Manifest describes a stored version.
type Manifest struct {
	Version      string            `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	Models       []string          `json:"models"`
	DefaultModel string            `json:"default_model"`
	TrainRows    int               `json:"train_rows"`
	TestRows     int               `json:"test_rows"`
	Files        map[string]string `json:"files"` // file name -> sha256
}

// Loaded is a model paired with the manifest it was fitted on.
type Loaded struct {
	Version  string
	Model    models.Regressor
	Name     string
	Columns  []string
	Manifest *Manifest
}

// Store manages versions under a root directory.
type Store struct {
	mu     sync.Mutex
	root   string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore opens a store rooted at dir. The directory is created on first Save.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{root: dir, logger: logging.OrNop(logger), now: time.Now}
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Save writes set as a new version and makes it current. The version is
// staged under a temporary name and renamed into place, then CURRENT is
// replaced, so readers see either the old set or the new one.
func (s *Store) Save(ctx context.Context, set *Set) (string, error) {
	if len(set.Models) == 0 {
		return "", fmt.Errorf("cannot save an empty model set")
	}
	_, span := otel.StartSpan(ctx, "artifacts.save")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now().UTC()
	version := fmt.Sprintf("%s-%s", created.Format("20060102T150405Z"), uuid.NewString()[:8])
	base := filepath.Join(s.root, versionsDir)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("failed to create versions directory: %w", err)
	}

	staging, err := os.MkdirTemp(base, ".staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	files := make(map[string][]byte)
	if files[ColumnsFile], err = json.MarshalIndent(set.Columns, "", "  "); err != nil {
		return "", fmt.Errorf("failed to encode feature columns: %w", err)
	}
	if files[MetricsFile], err = json.MarshalIndent(set.Report, "", "  "); err != nil {
		return "", fmt.Errorf("failed to encode metrics: %w", err)
	}

	names := make([]string, 0, len(set.Models))
	for name, r := range set.Models {
		data, err := models.Marshal(r, set.Columns, set.TrainedAt)
		if err != nil {
			return "", err
		}
		files[name+modelSuffix] = data
		names = append(names, name)
	}
	sort.Strings(names)

	manifest := Manifest{
		Version:      version,
		CreatedAt:    created,
		Models:       names,
		DefaultModel: set.DefaultModel,
		TrainRows:    set.TrainRows,
		TestRows:     set.TestRows,
		Files:        make(map[string]string, len(files)),
	}
	if manifest.DefaultModel == "" {
		manifest.DefaultModel = names[0]
	}
	for name, data := range files {
		if err := writeSynced(filepath.Join(staging, name), data); err != nil {
			otel.RecordError(span, err, "write artifact")
			return "", err
		}
		manifest.Files[name] = digest(data)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := writeSynced(filepath.Join(staging, ManifestFile), data); err != nil {
		return "", err
	}

	if err := os.Rename(staging, filepath.Join(base, version)); err != nil {
		return "", fmt.Errorf("failed to commit version %s: %w", version, err)
	}
	committed = true

	if err := s.activate(version); err != nil {
		return "", err
	}

	s.logger.Info("artifact set saved",
		zap.String("version", version),
		zap.Strings("models", names),
		zap.Int("features", len(set.Columns)),
	)
	return version, nil
}

// Activate points CURRENT at an existing version.
func (s *Store) Activate(version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.manifest(version); err != nil {
		return err
	}
	return s.activate(version)
}

func (s *Store) activate(version string) error {
	if err := writeAtomic(filepath.Join(s.root, CurrentFile), []byte(version+"\n")); err != nil {
		return fmt.Errorf("failed to activate version %s: %w", version, err)
	}
	return nil
}

// Current returns the active version id.
func (s *Store) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, CurrentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no active version in %s", ErrMissingArtifact, s.root)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current version: %w", err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("%w: empty %s", ErrMissingArtifact, CurrentFile)
	}
	return version, nil
}

// Load resolves CURRENT once and loads the named model, or the version's
// default model when name is empty. Integrity and column pairing are
// verified before the model is returned.
func (s *Store) Load(ctx context.Context, name string) (*Loaded, error) {
	version, err := s.Current()
	if err != nil {
		return nil, err
	}
	return s.LoadVersion(ctx, version, name)
}

// LoadVersion loads a model from a specific version.
func (s *Store) LoadVersion(ctx context.Context, version, name string) (*Loaded, error) {
	_, span := otel.StartSpan(ctx, "artifacts.load", otel.AttrVersion.String(version), otel.AttrModel.String(name))
	defer span.End()

	manifest, err := s.manifest(version)
	if err != nil {
		otel.RecordError(span, err, "")
		return nil, err
	}
	if name == "" {
		name = manifest.DefaultModel
	}

	columnsData, err := s.readVerified(manifest, ColumnsFile)
	if err != nil {
		otel.RecordError(span, err, "")
		return nil, err
	}
	var columns []string
	if err := json.Unmarshal(columnsData, &columns); err != nil {
		return nil, fmt.Errorf("failed to decode feature columns: %w", err)
	}

	modelData, err := s.readVerified(manifest, name+modelSuffix)
	if err != nil {
		otel.RecordError(span, err, "")
		return nil, err
	}
	model, env, err := models.Unmarshal(modelData)
	if err != nil {
		return nil, err
	}
	if err := CheckColumns(columns, env.FeatureColumns); err != nil {
		otel.RecordError(span, err, "")
		return nil, fmt.Errorf("model %s in version %s: %w", name, version, err)
	}

	return &Loaded{
		Version:  version,
		Model:    model,
		Name:     name,
		Columns:  columns,
		Manifest: manifest,
	}, nil
}

// LoadMetrics returns the evaluation report of the active version.
func (s *Store) LoadMetrics() (eval.Report, *Manifest, error) {
	version, err := s.Current()
	if err != nil {
		return nil, nil, err
	}
	manifest, err := s.manifest(version)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.readVerified(manifest, MetricsFile)
	if err != nil {
		return nil, nil, err
	}
	var report eval.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	return report, manifest, nil
}

// List returns every stored version, newest first.
func (s *Store) List() ([]*Manifest, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, versionsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	var out []*Manifest
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		m, err := s.manifest(e.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable version", zap.String("version", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Verify recomputes every file hash of a version.
func (s *Store) Verify(version string) error {
	manifest, err := s.manifest(version)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(manifest.Files))
	for name := range manifest.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := s.readVerified(manifest, name); err != nil {
			return err
		}
	}
	return nil
}

// CheckColumns fails unless model columns equal the manifest, in order.
func CheckColumns(manifest, model []string) error {
	if len(manifest) != len(model) {
		return fmt.Errorf("%w: manifest has %d columns, model expects %d", ErrFeatureMismatch, len(manifest), len(model))
	}
	for i := range manifest {
		if manifest[i] != model[i] {
			return fmt.Errorf("%w: column %d is %q in manifest, %q in model", ErrFeatureMismatch, i, manifest[i], model[i])
		}
	}
	return nil
}

func (s *Store) manifest(version string) (*Manifest, error) {
	if version == "" || strings.ContainsAny(version, `/\`) || strings.HasPrefix(version, ".") {
		return nil, fmt.Errorf("invalid version %q", version)
	}
	data, err := os.ReadFile(filepath.Join(s.root, versionsDir, version, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: version %s", ErrMissingArtifact, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest of %s: %w", version, err)
	}
	return &m, nil
}

func (s *Store) readVerified(m *Manifest, name string) ([]byte, error) {
	want, ok := m.Files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s not in version %s", ErrMissingArtifact, name, m.Version)
	}
	data, err := os.ReadFile(filepath.Join(s.root, versionsDir, m.Version, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s in version %s", ErrMissingArtifact, name, m.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if got := digest(data); got != want {
		return nil, fmt.Errorf("%w: %s hash %s, expected %s", ErrIntegrity, name, got[:12], want[:12])
	}
	return data, nil
}

func digest(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// writeAtomic replaces path through a synced temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
