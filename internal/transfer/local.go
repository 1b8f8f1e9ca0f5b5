package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LocalSpool copies files into a spool directory and reports the basename
// as the remote name. It stands in for the device's storage during tests
// and offline runs; networked upload mechanics live behind the same
// Uploader interface in an external collaborator.
type LocalSpool struct {
	dir string
	log zerolog.Logger
}

func NewLocalSpool(dir string, log zerolog.Logger) (*LocalSpool, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: missing spool directory", ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &LocalSpool{
		dir: dir,
		log: log.With().Str("component", "transfer").Logger(),
	}, nil
}

var _ Uploader = (*LocalSpool)(nil)

func (s *LocalSpool) Upload(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer src.Close()

	name := filepath.Base(localPath)
	dst, err := os.CreateTemp(s.dir, name+".partial-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	// Rename last so a crashed copy never leaves a printable-looking file.
	final := filepath.Join(s.dir, name)
	if err := os.Rename(dst.Name(), final); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	s.log.Info().Str("file", name).Msg("spooled upload")
	return name, nil
}
