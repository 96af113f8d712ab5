package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// MaxLogSize is the threshold past which the log file is truncated in place.
const MaxLogSize = 1 << 20 // 1 MiB

// truncatingWriter appends to a single log file and truncates it once it
// grows past MaxLogSize. No segmented rotation: the operational log is a
// bounded scratch record, not an archive.
type truncatingWriter struct {
	mu   sync.Mutex
	f    *os.File
	size int64
}

func (w *truncatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > MaxLogSize {
		if err := w.f.Truncate(0); err != nil {
			return 0, err
		}
		if _, err := w.f.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		w.size = 0
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// New builds the application logger: logrus with full timestamps, teeing
// every entry to stdout and to logPath.
func New(logPath string) (*logrus.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(io.MultiWriter(os.Stdout, &truncatingWriter{f: f, size: info.Size()}))
	return logger, nil
}
