package memory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFileContentRepository(t *testing.T) {
	repo := NewFileContentRepository()
	a, b := uuid.New(), uuid.New()

	repo.Save(a, "alpha")
	repo.Save(b, "beta")

	got, ok := repo.Get(a)
	assert.True(t, ok)
	assert.Equal(t, "alpha", got)
	assert.Equal(t, 2, repo.Count())

	repo.Delete(a)
	_, ok = repo.Get(a)
	assert.False(t, ok)
	assert.Equal(t, 1, repo.Count())

	// deleting twice is fine
	repo.Delete(a)
	assert.Equal(t, 1, repo.Count())
}
