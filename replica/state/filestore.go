package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// FileStore is a JSON-file-backed Adapter: one durable record per path,
// written atomically (write to a temp file, then rename) so a crash
// mid-write never leaves a half-written frontier behind. This is a
// single small struct, not hierarchical configuration, so stdlib
// encoding/json + os is the whole job; there is nothing a third-party
// config library would add.
type FileStore struct {
	path string

	mu         sync.Mutex
	pos        Position
	lastEvent  time.Time
	lastPos    uint32
	connecting bool
	processing bool
}

type fileRecord struct {
	LogName string `json:"log_name"`
	LogPos  uint32 `json:"log_pos"`
}

// NewFileStore builds a FileStore persisting to path. The file need not
// exist yet; LoadMasterInfo reports ok=false in that case.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) LoadMasterInfo() (Position, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Position{}, false, nil
		}
		return Position{}, false, errors.Wrapf(err, "state: read %s", f.path)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Position{}, false, errors.Wrapf(err, "state: parse %s", f.path)
	}

	pos := Position{LogName: rec.LogName, LogPos: rec.LogPos}
	f.mu.Lock()
	f.pos = pos
	f.mu.Unlock()
	return pos, true, nil
}

func (f *FileStore) SaveMasterInfo() error {
	f.mu.Lock()
	rec := fileRecord{LogName: f.pos.LogName, LogPos: f.pos.LogPos}
	f.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "state: marshal master info")
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "state: create temp file in %s", dir)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "state: write %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "state: close %s", tmpPath)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return errors.Wrapf(err, "state: rename %s to %s", tmpPath, f.path)
	}

	glog.V(2).Infof("state: saved %s at %s:%d", f.path, rec.LogName, rec.LogPos)
	return nil
}

func (f *FileStore) SetMasterLogNamePos(name string, pos uint32) {
	f.mu.Lock()
	f.pos = Position{LogName: name, LogPos: pos}
	f.mu.Unlock()
}

func (f *FileStore) SetLastEventTimePos(when time.Time, pos uint32) {
	f.mu.Lock()
	f.lastEvent = when
	f.lastPos = pos
	f.mu.Unlock()
}

func (f *FileStore) SetConnecting() {
	f.mu.Lock()
	f.connecting = true
	f.mu.Unlock()
}

func (f *FileStore) SetStateProcessing(processing bool) {
	f.mu.Lock()
	f.connecting = false
	f.processing = processing
	f.mu.Unlock()
}
