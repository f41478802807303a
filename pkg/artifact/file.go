package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the name of the artifact file written per run.
const FileName = "output.json"

// FileSink writes <Dir>/<run id>/output.json.
type FileSink struct {
	Dir string
}

func (s FileSink) Store(ctx context.Context, artifact Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(artifact.RunID)
	if err != nil {
		return err
	}
	payload, err := artifact.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifact: create run dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("artifact: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("artifact: rename %s: %w", tmp, err)
	}
	return nil
}

// Path returns the file the artifact of runID is written to.
func (s FileSink) Path(runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", errRunIDRequired
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("artifact: invalid run id %q", runID)
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, runID, FileName), nil
}
