package health

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
)

const (
	summaryFile  = "health_check.log"
	detailedFile = "health_check_detailed.log"
)

// Journal appends snapshots to a one-line summary log and a detailed JSON log
type Journal struct {
	dir string
	mu  sync.Mutex
}

// NewJournal writes into dir, created on first append
func NewJournal(dir string) *Journal {
	return &Journal{dir: dir}
}

// SummaryPath returns the summary log location
func (j *Journal) SummaryPath() string {
	return filepath.Join(j.dir, summaryFile)
}

// DetailedPath returns the detailed log location
func (j *Journal) DetailedPath() string {
	return filepath.Join(j.dir, detailedFile)
}

// Append records snapshot in both logs
func (j *Journal) Append(snapshot *entities.HealthSnapshot) error {
	detailed, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	summary := fmt.Sprintf("%s - %s\n", snapshot.Timestamp.Format(time.RFC3339), strings.ToUpper(string(snapshot.Status)))

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	if err := appendFile(j.SummaryPath(), []byte(summary)); err != nil {
		return err
	}
	return appendFile(j.DetailedPath(), append(detailed, '\n', '\n'))
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
