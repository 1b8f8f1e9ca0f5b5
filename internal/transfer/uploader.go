// Package transfer defines the file-upload boundary the print-start flow
// depends on. The device only prints files already present on its storage,
// so StartPrint callers must hold a successful upload result first.
package transfer

import (
	"context"
	"errors"
)

var (
	ErrUpload        = errors.New("transfer: upload failed")
	ErrInvalidConfig = errors.New("transfer: invalid config")
)

// Uploader places a local file where the device can print it and returns
// the remote name to pass to StartPrint.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (remoteName string, err error)
}
