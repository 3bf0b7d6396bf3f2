// Package wal is the append-only journal of served predictions.
package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/YassChaai/SmartCare-Analytics/internal/store"
)

const (
	filePrefix = "predictions-"
	fileSuffix = ".jsonl"
	maxLine    = 4 << 20
)

// Journal appends one JSON line per prediction record, fsynced.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Entry is one journal line.
type Entry struct {
	Timestamp time.Time     `json:"ts"`
	Record    *store.Record `json:"record"`
}

// Open creates or opens the journal file of the current day in dirPath.
func Open(dirPath string) (*Journal, error) {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	path := filepath.Join(dirPath, filePrefix+time.Now().UTC().Format("20060102")+fileSuffix)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	return &Journal{file: file, path: path}, nil
}

// Path returns the file being appended to.
func (j *Journal) Path() string { return j.path }

// Append writes r to the journal and syncs it to disk.
func (j *Journal) Append(r *store.Record) error {
	line, err := json.Marshal(Entry{Timestamp: time.Now().UTC(), Record: r})
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	return nil
}

// Close syncs and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.file.Sync(); err != nil {
		return err
	}
	return j.file.Close()
}

// Replay reads the entries of one journal file. Malformed lines, such as
// a torn final write, are skipped.
func Replay(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil || e.Record == nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// ReplayDir reads every journal file of dirPath in chronological order.
func ReplayDir(dirPath string) ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(dirPath, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var all []Entry
	for _, p := range paths {
		entries, err := Replay(p)
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", filepath.Base(p), err)
		}
		all = append(all, entries...)
	}
	return all, nil
}

// Restore saves the journalled records of dirPath into s, oldest first, so
// the store's latest record matches the journal. It returns the count.
func Restore(ctx context.Context, dirPath string, s store.Store) (int, error) {
	entries, err := ReplayDir(dirPath)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.Save(ctx, e.Record); err != nil {
			return i, fmt.Errorf("restore %s: %w", e.Record.ID, err)
		}
	}
	return len(entries), nil
}
