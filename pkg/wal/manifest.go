package wal

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Manifest records the high-water sequence covered by the last segment
// flush, so WAL replay on open starts strictly after it (spec §4.2).
type Manifest struct {
	SegmentHighSequence uint64 `json:"segment_high_sequence"`
	SegmentCreatedAt    int64  `json:"segment_created_at_us"`
}

// LoadManifest reads manifest.json from dir. A missing file is not an
// error: it means no segment has ever been flushed, so replay starts from
// sequence 1.
func LoadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, "manifest.json")
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, nil
	}
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// SaveManifest writes m to dir atomically: write to a uuid-suffixed temp
// file in the same directory, fsync, then rename over manifest.json.
// Same-directory rename is atomic on POSIX filesystems and never leaves a
// half-written manifest visible.
func SaveManifest(dir string, m Manifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, "manifest."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, "manifest.json"))
}
