package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/goliatone/go-experiment/pkg/objectstore"
)

// ObjectSink uploads artifacts to <Prefix>/<run id>/output.json in an
// object store.
type ObjectSink struct {
	Objects objectstore.Store
	Prefix  string
	// OnStored, when set, receives the object key and sha256 of each upload.
	OnStored func(key, sha256Hex string)
}

func (s ObjectSink) Store(ctx context.Context, artifact Artifact) error {
	if s.Objects == nil {
		return fmt.Errorf("artifact: object store is not configured")
	}
	key, err := s.Key(artifact.RunID)
	if err != nil {
		return err
	}
	payload, err := artifact.Encode()
	if err != nil {
		return err
	}
	if err := s.Objects.Put(ctx, key, payload, "application/json"); err != nil {
		return fmt.Errorf("artifact: upload run %s: %w", artifact.RunID, err)
	}
	if s.OnStored != nil {
		sum := sha256.Sum256(payload)
		s.OnStored(key, hex.EncodeToString(sum[:]))
	}
	return nil
}

// Key returns the object key for runID.
func (s ObjectSink) Key(runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", errRunIDRequired
	}
	return path.Join(strings.Trim(s.Prefix, "/"), runID, FileName), nil
}
