package backup

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Writer appends records to one CSV file per device under a single
// directory. Files are append-only; the header is written exactly once, when
// the file is created. Appends for different devices may run concurrently.
// Appends for the same device are serialized, which protects against a slow
// write from one cycle overlapping the next.
type Writer struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}
}

// Dir returns the backup directory.
func (w *Writer) Dir() string { return w.dir }

// Path returns the file holding a device's backup rows.
func (w *Writer) Path(deviceID string) string {
	return filepath.Join(w.dir, safeName(deviceID)+".csv")
}

// Append writes one row for rec's device, creating the directory, the file
// and the header as needed.
func (w *Writer) Append(rec Record) error {
	lock := w.deviceLock(rec.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	f, err := os.OpenFile(w.Path(rec.DeviceID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open backup file: %w", err)
	}

	werr := appendRow(f, rec)
	if cerr := f.Close(); werr == nil && cerr != nil {
		werr = fmt.Errorf("close backup file: %w", cerr)
	}
	return werr
}

func appendRow(f *os.File, rec Record) error {
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat backup file: %w", err)
	}

	cw := csv.NewWriter(f)
	if fi.Size() == 0 {
		if err := cw.Write(headerRow()); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := cw.Write(rec.row()); err != nil {
		return fmt.Errorf("write row: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush backup file: %w", err)
	}
	return nil
}

// deviceLock returns the mutex serializing appends for one device.
func (w *Writer) deviceLock(deviceID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()

	lock, ok := w.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[deviceID] = lock
	}
	return lock
}

// safeName scrubs path separators out of a device id so a hostile id cannot
// place files outside the backup directory.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		default:
			return r
		}
	}, id)
}
