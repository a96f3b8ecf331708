package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const maxRetentionDays = 7

// DailyFile writes to dir/app-YYYY-MM-DD.log, switching files when the date
// changes and pruning files older than the retention window.
type DailyFile struct {
	dir           string
	retentionDays int
	now           func() time.Time

	mu   sync.Mutex
	date string
	file *os.File
}

func OpenDailyFile(dir string, retentionDays int) (*DailyFile, error) {
	return openDailyFile(dir, retentionDays, time.Now)
}

func openDailyFile(dir string, retentionDays int, now func() time.Time) (*DailyFile, error) {
	if retentionDays <= 0 {
		retentionDays = maxRetentionDays
	}
	if retentionDays > maxRetentionDays {
		retentionDays = maxRetentionDays
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	d := &DailyFile{dir: dir, retentionDays: retentionDays, now: now}
	if err := d.rotate(now().Format("2006-01-02")); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if date := d.now().Format("2006-01-02"); date != d.date {
		if err := d.rotate(date); err != nil {
			return 0, err
		}
	}
	return d.file.Write(p)
}

func (d *DailyFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	return d.file.Sync()
}

func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func (d *DailyFile) rotate(date string) error {
	filename := filepath.Join(d.dir, fmt.Sprintf("app-%s.log", date))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if d.file != nil {
		_ = d.file.Close()
	}
	d.file = file
	d.date = date
	d.cleanup()
	return nil
}

func (d *DailyFile) cleanup() {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return
	}
	today, _ := time.Parse("2006-01-02", d.date)
	cutoff := today.AddDate(0, 0, -(d.retentionDays - 1))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() {
			continue
		}
		if !strings.HasPrefix(name, "app-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		logDate, err := time.Parse("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(name, "app-"), ".log"))
		if err != nil {
			continue
		}
		if logDate.Before(cutoff) {
			_ = os.Remove(filepath.Join(d.dir, name))
		}
	}
}
