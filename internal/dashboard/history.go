package dashboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SavedResult is a results file previously written by a download.
type SavedResult struct {
	JobID   string
	Path    string
	Size    int64
	ModTime time.Time
}

// ListSavedResults returns the job_<id>_results.json files in dir, newest
// first.
func ListSavedResults(dir string) ([]SavedResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading results dir: %w", err)
	}

	var out []SavedResult
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "job_") || !strings.HasSuffix(name, "_results.json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, SavedResult{
			JobID:   strings.TrimSuffix(strings.TrimPrefix(name, "job_"), "_results.json"),
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].JobID < out[j].JobID
	})
	return out, nil
}

// LoadSavedResult reads a saved results file.
func LoadSavedResult(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("reading %s: not valid JSON", path)
	}
	return json.RawMessage(data), nil
}
