package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// NewCache creates a pixel store based on the store type
func NewCache(storeType, storeDir string, memoryEntries int, log *zap.Logger) (Cache, error) {
	switch storeType {
	case "memory":
		log.Info("Using memory pixel store", zap.Int("max_entries", memoryEntries))
		return NewMemoryCache(memoryEntries), nil
	case "file":
		log.Info("Using file pixel store", zap.String("store_dir", storeDir))
		return NewFileCache(storeDir, log)
	case "disabled", "":
		log.Info("Pixel store disabled")
		return NewNoopCache(), nil
	default:
		return nil, fmt.Errorf("unknown pixel store type: %s (supported: memory, file, disabled)", storeType)
	}
}
