package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/surge-downloader/surge/internal/config"
)

var (
	debugMu     sync.Mutex
	debugLogger *log.Logger
	debugFile   *os.File
	debugDir    string
)

// ConfigureDebug points future Debug calls at a log file under dir. Tests
// use this to redirect logging into a temp directory; production code
// leaves it unset, and the first Debug call then falls back to
// config.GetLogsDir().
func ConfigureDebug(dir string) {
	debugMu.Lock()
	defer debugMu.Unlock()

	if debugFile != nil {
		debugFile.Close()
		debugFile = nil
		debugLogger = nil
	}
	debugDir = dir
}

// Debug writes a timestamped line to the current debug log file, opening a
// new file named debug-YYYYMMDD-HHMMSS.log on first use (or after
// ConfigureDebug redirects the destination).
func Debug(format string, args ...any) {
	debugMu.Lock()
	defer debugMu.Unlock()

	if debugLogger == nil {
		if debugDir == "" {
			debugDir = config.GetLogsDir()
		}
		if err := os.MkdirAll(debugDir, 0755); err != nil {
			return
		}
		name := fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))
		f, err := os.Create(filepath.Join(debugDir, name))
		if err != nil {
			return
		}
		debugFile = f
		debugLogger = log.New(f, "", 0)
	}

	debugLogger.Printf("[%s] %s", time.Now().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
}

// CleanupLogs deletes all but the keep newest debug-*.log files in the
// configured debug directory.
func CleanupLogs(keep int) {
	debugMu.Lock()
	dir := debugDir
	debugMu.Unlock()

	if dir == "" || keep < 0 {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) < 6 || name[:6] != "debug-" {
			continue
		}
		names = append(names, name)
	}

	if len(names) <= keep {
		return
	}

	// debug-YYYYMMDD-HHMMSS.log sorts lexicographically in timestamp order,
	// so a plain descending string sort ranks newest-first.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names[keep:] {
		os.Remove(filepath.Join(dir, name))
	}
}
