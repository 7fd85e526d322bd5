package session

import (
	"os"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmagar/epgrab/internal/helpers"
	"github.com/jmagar/epgrab/internal/model"
)

// newWorkspace creates a uniquely named directory under root (the system
// temp dir when empty).
func newWorkspace(root string) (string, error) {
	if root != "" {
		if err := helpers.MakeDirs(root); err != nil {
			return "", model.FSError("mkdir", root, err)
		}
	}
	dir, err := os.MkdirTemp(root, "epgrab-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return "", model.FSError("create workspace", root, err)
	}
	return dir, nil
}

// removeWorkspace deletes dir recursively. Failures are only logged.
func removeWorkspace(logger zerolog.Logger, dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn().Err(err).Str("workspace", dir).Msg("failed to remove workspace")
		return
	}
	logger.Debug().Str("workspace", dir).Msg("workspace removed")
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return model.FSError("read", src, err)
	}
	if err := renameio.WriteFile(dst, data, 0o644); err != nil {
		return model.FSError("write", dst, err)
	}
	_ = os.Remove(src)
	return nil
}
