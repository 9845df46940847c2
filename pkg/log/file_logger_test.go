package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	event := Event{
		Timestamp: time.Now(),
		SessionID: "session-123",
		Direction: DirectionIn,
		Layer:     LayerTransport,
		Category:  CategoryData,
		Data:      NewDataEvent([]byte{1, 2, 3}),
	}

	logger.Log(event)
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if decoded.SessionID != event.SessionID {
		t.Errorf("SessionID: got %q, want %q", decoded.SessionID, event.SessionID)
	}
	if decoded.Data == nil || decoded.Data.Size != 3 {
		t.Errorf("Data: got %+v", decoded.Data)
	}
}

func TestFileLoggerAppendsAndIgnoresAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{SessionID: "s", Key: uint64(i + 1)})
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		logger.Log(Event{SessionID: "after-close"})
		if err := logger.Close(); err != nil {
			t.Errorf("second Close returned %v", err)
		}
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		ev, err := r.Next()
		if err != nil {
			break
		}
		if ev.SessionID == "after-close" {
			t.Error("event logged after Close was written")
		}
		count++
	}
	if count != 2 {
		t.Errorf("read %d events, want 2", count)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(Event{SessionID: "s", Data: NewDataEvent([]byte("payload"))})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		if _, err := r.Next(); err != nil {
			break
		}
		count++
	}
	if count != 200 {
		t.Errorf("read %d events, want 200", count)
	}
}

func TestFileLoggerRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	one, err := EncodeEvent(Event{SessionID: "s", Key: 1})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	// Room for two events per file.
	logger, err := NewFileLogger(path, WithMaxSize(int64(2*len(one))))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		logger.Log(Event{SessionID: "s", Key: 1})
	}
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync failed: %v", err)
	}
	logger.Close()

	if n := countEvents(t, path+".1"); n != 2 {
		t.Errorf("backup holds %d events, want 2", n)
	}
	if n := countEvents(t, path); n != 1 {
		t.Errorf("current file holds %d events, want 1", n)
	}
	if logger.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", logger.Dropped())
	}
	if err := logger.Sync(); err == nil {
		t.Error("Sync after Close succeeded")
	}
}

func TestFileLoggerBadPath(t *testing.T) {
	if _, err := NewFileLogger(filepath.Join(t.TempDir(), "missing", "x.slog")); err == nil {
		t.Error("NewFileLogger succeeded for a missing directory")
	}
}

func countEvents(t *testing.T, path string) int {
	t.Helper()
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader(%s) failed: %v", path, err)
	}
	defer r.Close()
	n := 0
	for {
		if _, err := r.Next(); err != nil {
			return n
		}
		n++
	}
}
