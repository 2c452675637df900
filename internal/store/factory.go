package store

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Open selects a backend by name: "file" (default) or "postgres".
func Open(backend, stateFile, databaseURL string, log zerolog.Logger) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(stateFile, log)
	case "postgres":
		return NewPostgresStore(databaseURL, log)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
