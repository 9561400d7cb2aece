package memory_test

import (
	"testing"

	"github.com/aussiebroadwan/sessionkit/pkg/storage/drivers/memory"
	"github.com/aussiebroadwan/sessionkit/pkg/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, memory.New())
}
