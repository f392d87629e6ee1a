package mqtt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// instanceIDFile holds this installation's id inside the data directory.
const instanceIDFile = "instance_id"

// LoadOrCreateInstanceID returns the UUID stored in dataDir, creating
// and persisting a new UUIDv7 when the file is missing or does not hold
// a UUID. The id scopes this installation's topics, so it outlives
// changes to client_name.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, instanceIDFile)

	if data, err := os.ReadFile(path); err == nil {
		if id, err := uuid.Parse(strings.TrimSpace(string(data))); err == nil {
			return id.String(), nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read instance id: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance id: %w", err)
	}
	if err := writeInstanceID(dataDir, path, id); err != nil {
		return "", err
	}
	return id.String(), nil
}

// writeInstanceID replaces path through a rename so a concurrent reader
// never sees a partial id.
func writeInstanceID(dataDir, path string, id uuid.UUID) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dataDir, instanceIDFile+".*")
	if err != nil {
		return fmt.Errorf("persist instance id: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(id.String() + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("persist instance id: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist instance id: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("persist instance id: %w", err)
	}
	return nil
}
