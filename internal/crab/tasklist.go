package crab

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// TaskEntry is one line of a grid task list.
type TaskEntry struct {
	Name string
	Dir  string
}

// ReadTaskList parses a file of `name<TAB>dir` lines. Blank lines are
// ignored.
func ReadTaskList(path string) ([]TaskEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read task list: %w", err)
	}
	defer f.Close()

	var entries []TaskEntry
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, dir, ok := strings.Cut(line, "\t")
		if !ok || name == "" || dir == "" || strings.Contains(dir, "\t") {
			return nil, fmt.Errorf("%s:%d: expected name<TAB>dir, got %q", path, n, line)
		}
		entries = append(entries, TaskEntry{Name: name, Dir: dir})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read task list: %w", err)
	}
	return entries, nil
}
