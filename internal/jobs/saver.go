package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResultSaver stores a downloaded result payload and returns its location.
type ResultSaver interface {
	Save(jobID string, payload json.RawMessage) (string, error)
}

// FileSaver writes results as indented JSON to <Dir>/job_<id>_results.json.
type FileSaver struct {
	Dir string
}

var idReplacer = strings.NewReplacer("/", "_", "\\", "_", "..", "_", string(os.PathSeparator), "_")

// ResultFileName returns the file name used for a job's results.
func ResultFileName(jobID string) string {
	return fmt.Sprintf("job_%s_results.json", idReplacer.Replace(jobID))
}

func (s FileSaver) Save(jobID string, payload json.RawMessage) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		// Not JSON; keep the bytes as received.
		buf.Reset()
		buf.Write(payload)
	} else {
		buf.WriteByte('\n')
	}

	path := filepath.Join(dir, ResultFileName(jobID))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	return path, nil
}
