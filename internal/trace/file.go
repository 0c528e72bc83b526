package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// File wraps Memory with a durable JSONL tee, following
// internal/store.Worker.appendTranscript's single-writer append idiom
// (open-append-sync under a mutex) rather than store.Worker's full
// actor/channel machinery, since the trace log has no competing
// readers inside the writer process.
type File struct {
	*Memory
	path   string
	mu     sync.Mutex
	file   *os.File
}

// NewFile opens (or creates) path for append and returns a Store that
// durably persists every Append in addition to serving reads from the
// in-memory index.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}

	mem := NewMemory()
	store := &File{Memory: mem, path: path, file: f}
	mem.OnWrite(store.tee)

	if err := store.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return store, nil
}

func (f *File) tee(rec Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	data = append(data, '\n')
	if _, err := f.file.Write(data); err != nil {
		return
	}
	_ = f.file.Sync()
}

func (f *File) replay() error {
	existing, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer existing.Close()

	scanner := bufio.NewScanner(existing)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		f.Memory.mu.Lock()
		f.Memory.byID[rec.ID] = rec
		f.Memory.byUser[rec.UserID] = append(f.Memory.byUser[rec.UserID], rec.ID)
		f.Memory.mu.Unlock()
	}
	return scanner.Err()
}

// Close flushes and releases the underlying file handle.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

var _ Store = (*Memory)(nil)
var _ Store = (*File)(nil)
