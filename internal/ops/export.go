package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/coedaniel/aws-propuestas-v3/internal/errors"
	"github.com/coedaniel/aws-propuestas-v3/internal/session"
)

// ExportsDirName is the transcript directory under the base directory.
const ExportsDirName = "exports"

// ExportInput contains parameters for the ExportTranscript operation.
type ExportInput struct {
	SessionID string
	Format    string // md (default) or html; ignored when Path has an extension
	Path      string // optional, default: <base>/exports/<title>-<timestamp>.<ext>
}

// ExportOutput contains the result of the ExportTranscript operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Messages   int    `json:"messages"`
	Bytes      int    `json:"bytes"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportTranscript writes a session transcript into baseDir/exports.
func ExportTranscript(ctx context.Context, store *session.Store, baseDir string, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	exportsDir := filepath.Join(baseDir, ExportsDirName)

	state, err := store.Load(input.SessionID)
	if err != nil {
		return nil, err
	}

	format, err := session.ParseFormat(input.Format)
	if err != nil {
		return nil, err
	}
	exportPath := input.Path
	if exportPath == "" {
		name := SanitizeForFilename(state.Title)
		exportPath = filepath.Join(exportsDir, fmt.Sprintf("%s-%s.%s", name, now.Format("2006-01-02T150405"), format))
	} else if f := FormatForPath(exportPath); f != "" {
		format = f
	}

	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create exports directory: %w", err))
	}
	_ = os.Chmod(exportsDir, 0700)

	// Default paths are validated too; the title is user-controlled
	if err := ValidateExportPath(exportPath, exportsDir); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, errors.NewInternal(ctx.Err())
	default:
	}

	data, err := session.Export(state, format)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(exportPath, data); err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		Messages:   len(state.Messages),
		Bytes:      len(data),
		ExportedAt: now.Unix(),
	}, nil
}

// writeAtomic writes data to a temp file next to path and renames it into
// place, so an existing file survives a failed write.
func writeAtomic(path string, data []byte) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}
