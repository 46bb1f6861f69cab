package integration

import (
	"os"
	"path/filepath"

	"github.com/streamhouse/streamhouse/internal/storage"
)

func readObject(store *storage.LocalStorage, objectPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(store.BasePath(), filepath.FromSlash(objectPath)))
}
