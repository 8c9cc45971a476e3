// Package store is the server's file-backed GeoJSON store. Each
// district file lives in the data directory as <name>.geojson with
// optional companion layers <name>.points.geojson and
// <name>.items.geojson. Saves back up the previous content once per
// version under _backup/ and record a snapshot under _history/.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/mirrorlake/geodesk/internal/fsutil"
	"github.com/mirrorlake/geodesk/internal/security"
	"github.com/mirrorlake/geodesk/internal/timeutil"
)

const (
	geojsonExt   = ".geojson"
	pointsSuffix = ".points.geojson"
	itemsSuffix  = ".items.geojson"

	backupDirName  = "_backup"
	historyDirName = "_history"
)

var (
	// ErrNotFound reports a file or snapshot that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadName rejects empty names and path traversal attempts.
	ErrBadName = errors.New("invalid file name")
)

// Version identifies one saved snapshot.
type Version struct {
	SaveID     string    `json:"save_id"`
	SavedAt    time.Time `json:"saved_at"`
	FileName   string    `json:"file_name"`
	SchoolName string    `json:"school_name,omitempty"`
}

// Snapshot is the full content of a saved version. Items are not
// snapshotted: they are regenerated from the polygon layer and have no
// manual edits worth versioning.
type Snapshot struct {
	Version
	Polygons *geojson.FeatureCollection `json:"polygons"`
	Points   *geojson.FeatureCollection `json:"points"`
}

// Store reads and writes GeoJSON files under one data directory.
type Store struct {
	dataDir string
	fs      fsutil.FileSystem
	clock   timeutil.Clock

	// newID mints save IDs. Tests may replace it for stable names.
	newID func() string
}

// New creates a store rooted at dataDir.
func New(dataDir string, fs fsutil.FileSystem, clock timeutil.Clock) *Store {
	return &Store{
		dataDir: dataDir,
		fs:      fs,
		clock:   clock,
		newID:   uuid.NewString,
	}
}

// ValidateName rejects names that are empty or escape the data
// directory.
func ValidateName(name string) error {
	if err := security.ValidateFileName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrBadName, err)
	}
	return nil
}

// ensureExt appends the .geojson extension when it is missing.
func ensureExt(name string) string {
	if strings.HasSuffix(name, geojsonExt) {
		return name
	}
	return name + geojsonExt
}

// PointsName derives the boundary-point file name for a polygon file.
func PointsName(name string) string {
	return strings.TrimSuffix(ensureExt(name), geojsonExt) + pointsSuffix
}

// ItemsName derives the subdivision-item file name for a polygon file.
func ItemsName(name string) string {
	return strings.TrimSuffix(ensureExt(name), geojsonExt) + itemsSuffix
}

// List returns the polygon file names in the data directory, sorted.
// Companion points/items files are not listed on their own.
func (s *Store) List() ([]string, error) {
	names, err := s.fs.ListFiles(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dataDir, err)
	}
	var out []string
	for _, n := range names {
		if !strings.HasSuffix(n, geojsonExt) {
			continue
		}
		if strings.HasSuffix(n, pointsSuffix) || strings.HasSuffix(n, itemsSuffix) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// LoadPolygons reads a polygon collection. Returns ErrNotFound when
// the file does not exist.
func (s *Store) LoadPolygons(name string) (*geojson.FeatureCollection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return s.load(ensureExt(name))
}

// LoadPoints reads the boundary points for a file.
func (s *Store) LoadPoints(name string) (*geojson.FeatureCollection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return s.load(PointsName(name))
}

// LoadItems reads the subdivision items for a file.
func (s *Store) LoadItems(name string) (*geojson.FeatureCollection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return s.load(ItemsName(name))
}

func (s *Store) load(fileName string) (*geojson.FeatureCollection, error) {
	path := filepath.Join(s.dataDir, fileName)
	if !s.fs.Exists(path) {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNotFound)
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fileName, err)
	}
	return fc, nil
}

// SavePolygons writes a polygon collection, backing up the previous
// content and recording a history snapshot. school scopes the snapshot
// when the client saved a filtered edit.
func (s *Store) SavePolygons(name string, fc *geojson.FeatureCollection, school string) (*Version, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.write(ensureExt(name), fc); err != nil {
		return nil, err
	}
	return s.recordSnapshot(name, school)
}

// SavePoints writes the boundary points, backing up the previous
// content and recording a history snapshot.
func (s *Store) SavePoints(name string, fc *geojson.FeatureCollection, school string) (*Version, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.write(PointsName(name), fc); err != nil {
		return nil, err
	}
	return s.recordSnapshot(name, school)
}

// SaveItems writes the subdivision items. Items are never snapshotted.
func (s *Store) SaveItems(name string, fc *geojson.FeatureCollection) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return s.write(ItemsName(name), fc)
}

// write persists fc as indented GeoJSON, copying the previous version
// to _backup/<stem>.<mtime><ext> first. The mtime in the backup name
// makes a second save of the same version a no-op.
func (s *Store) write(fileName string, fc *geojson.FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", fileName, err)
	}

	path := filepath.Join(s.dataDir, fileName)
	if err := s.backup(fileName, path); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := s.fs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", fileName, err)
	}
	return nil
}

func (s *Store) backup(fileName, path string) error {
	if !s.fs.Exists(path) {
		return nil
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", fileName, err)
	}

	ext := filepath.Ext(fileName)
	stem := strings.TrimSuffix(fileName, ext)
	backupName := fmt.Sprintf("%s.%d%s", stem, info.ModTime().Unix(), ext)
	backupPath := filepath.Join(s.dataDir, backupDirName, backupName)
	if s.fs.Exists(backupPath) {
		return nil
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s for backup: %w", fileName, err)
	}
	if err := s.fs.MkdirAll(filepath.Join(s.dataDir, backupDirName), 0755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if err := s.fs.WriteFile(backupPath, data, 0644); err != nil {
		return fmt.Errorf("write backup %s: %w", backupName, err)
	}
	return nil
}

// recordSnapshot captures the file's current polygons and points under
// a fresh save ID.
func (s *Store) recordSnapshot(name, school string) (*Version, error) {
	polygons, err := s.load(ensureExt(name))
	if err != nil {
		return nil, err
	}
	points, err := s.load(PointsName(name))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	snap := Snapshot{
		Version: Version{
			SaveID:     s.newID(),
			SavedAt:    s.clock.Now().UTC(),
			FileName:   ensureExt(name),
			SchoolName: school,
		},
		Polygons: polygons,
		Points:   points,
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Join(s.dataDir, historyDirName)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	if err := s.fs.WriteFile(filepath.Join(dir, snap.SaveID+".json"), data, 0644); err != nil {
		return nil, fmt.Errorf("write snapshot %s: %w", snap.SaveID, err)
	}
	v := snap.Version
	return &v, nil
}

// History lists the saved versions for a file, newest first, optionally
// scoped to one school.
func (s *Store) History(name, school string) ([]Version, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	fileName := ensureExt(name)

	dir := filepath.Join(s.dataDir, historyDirName)
	entries, err := s.fs.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	var versions []Version
	for _, e := range entries {
		if !strings.HasSuffix(e, ".json") {
			continue
		}
		data, err := s.fs.ReadFile(filepath.Join(dir, e))
		if err != nil {
			return nil, fmt.Errorf("read snapshot %s: %w", e, err)
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", e, err)
		}
		if snap.FileName != fileName {
			continue
		}
		if school != "" && snap.SchoolName != school {
			continue
		}
		versions = append(versions, snap.Version)
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].SavedAt.After(versions[j].SavedAt)
	})
	return versions, nil
}

// GetSnapshot returns one saved version by ID. Returns ErrNotFound for
// unknown IDs.
func (s *Store) GetSnapshot(saveID string) (*Snapshot, error) {
	if err := security.ValidateFileName(saveID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadName, err)
	}
	path := filepath.Join(s.dataDir, historyDirName, saveID+".json")
	if !s.fs.Exists(path) {
		return nil, fmt.Errorf("snapshot %s: %w", saveID, ErrNotFound)
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", saveID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", saveID, err)
	}
	return &snap, nil
}

// StoredFile is one raw file in the data directory, as fed to the
// database by save_all.
type StoredFile struct {
	Name string
	Data []byte
}

// AllFiles returns every stored GeoJSON file, companion layers
// included.
func (s *Store) AllFiles() ([]StoredFile, error) {
	names, err := s.fs.ListFiles(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dataDir, err)
	}
	var out []StoredFile
	for _, n := range names {
		if !strings.HasSuffix(n, geojsonExt) {
			continue
		}
		data, err := s.fs.ReadFile(filepath.Join(s.dataDir, n))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", n, err)
		}
		out = append(out, StoredFile{Name: n, Data: data})
	}
	return out, nil
}
