package artifact

import "errors"

// Sentinel kinds for artifact store errors.
var (
	ErrNotFound = errors.New("artifact not found")
	ErrNoBackup = errors.New("no backup to restore")
)
