package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filepipe/internal/constants"
	"filepipe/internal/logger"
)

const (
	OverwriteModeOverwrite = "overwrite"
	OverwriteModeSkip      = "skip"
	OverwriteModeRename    = "rename"
)

// FolderHandler writes files into a directory tree built from the
// destination's path and file name templates.
type FolderHandler struct {
	logger logger.Logger
}

func NewFolderHandler(log logger.Logger) *FolderHandler {
	return &FolderHandler{logger: log}
}

func (h *FolderHandler) CanHandle(destinationType string) bool {
	return destinationType == constants.DestinationTypeFolder
}

func (h *FolderHandler) Write(ctx context.Context, req WriteRequest) error {
	if req.Destination.PathTemplate == "" {
		return fmt.Errorf("folder destination %q has no path template", req.Destination.Name)
	}

	now := time.Now().UTC()
	dir := expandTemplate(req.Destination.PathTemplate, req, now)

	fileName := req.FileName
	if req.Destination.FileNameTemplate != "" {
		fileName = expandTemplate(req.Destination.FileNameTemplate, req, now)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	target := filepath.Join(dir, fileName)
	if _, err := os.Stat(target); err == nil {
		switch req.Destination.OverwriteMode {
		case OverwriteModeSkip:
			h.logger.Infow("Output file exists, skipping",
				"destination", req.Destination.Name,
				"path", target,
			)
			return nil
		case OverwriteModeOverwrite:
			// Explicit opt-in; the existing file is replaced.
		default:
			// Renaming is the default so a collision never destroys a
			// previous delivery.
			ext := filepath.Ext(fileName)
			base := strings.TrimSuffix(fileName, ext)
			target = filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, now.Format("20060102T150405"), ext))
		}
	}

	if err := os.WriteFile(target, req.Content, 0o644); err != nil {
		return fmt.Errorf("failed to write output file %s: %w", target, err)
	}
	return nil
}

// expandTemplate substitutes the supported placeholders. Unknown
// placeholders are left as-is so misconfigurations are visible in the
// produced paths.
func expandTemplate(template string, req WriteRequest, now time.Time) string {
	replacer := strings.NewReplacer(
		"{sourceId}", req.SourceID,
		"{sourceName}", req.SourceName,
		"{fileName}", req.FileName,
		"{ext}", filepath.Ext(req.FileName),
		"{yyyy}", now.Format("2006"),
		"{MM}", now.Format("01"),
		"{dd}", now.Format("02"),
		"{timestamp}", now.Format("20060102T150405"),
	)
	return replacer.Replace(template)
}
