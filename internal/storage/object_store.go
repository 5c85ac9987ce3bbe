package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"creative-backend/pkg/api"

	"github.com/google/uuid"
)

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPresignUnsupported = errors.New("presigned uploads are not supported by this object store")
)

type PresignedUpload struct {
	Url       string
	Method    string
	ExpiresAt time.Time
}

type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) error

	GetObject(ctx context.Context, key string) ([]byte, error)

	DeleteObjects(ctx context.Context, prefix string) error

	PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (PresignedUpload, error)
}

func ArchiveKey(evaluationId uuid.UUID) string {
	return path.Join("evaluations", evaluationId.String()+".json")
}

// UploadKey returns a fresh key for a creative asset upload. Only the base
// name of filename is kept.
func UploadKey(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "asset"
	}
	return path.Join("uploads", uuid.New().String(), name)
}

// ArchiveResult writes the full result document of an evaluation and returns
// the key it was stored under.
func ArchiveResult(ctx context.Context, store ObjectStore, result *api.EvaluationResult) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to serialize evaluation result: %w", err)
	}

	key := ArchiveKey(result.EvaluationId)
	if err := store.PutObject(ctx, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to archive evaluation %s: %w", result.EvaluationId, err)
	}
	return key, nil
}

func LoadArchivedResult(ctx context.Context, store ObjectStore, evaluationId uuid.UUID) (*api.EvaluationResult, error) {
	data, err := store.GetObject(ctx, ArchiveKey(evaluationId))
	if err != nil {
		return nil, err
	}

	var result api.EvaluationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse archived evaluation %s: %w", evaluationId, err)
	}
	return &result, nil
}
