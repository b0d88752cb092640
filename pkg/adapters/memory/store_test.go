package memory_test

import (
	"testing"

	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSagaStoreContract(t, store)
}
