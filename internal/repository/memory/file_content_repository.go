package memory

import (
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// FileContentRepository caches the extracted text of ingested files.
// Entries never expire on their own; they live until the file is deleted.
type FileContentRepository struct {
	cache *cache.Cache
}

func NewFileContentRepository() *FileContentRepository {
	return &FileContentRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (r *FileContentRepository) Save(fileId uuid.UUID, content string) {
	r.cache.Set(fileId.String(), content, cache.NoExpiration)
}

func (r *FileContentRepository) Get(fileId uuid.UUID) (string, bool) {
	if x, found := r.cache.Get(fileId.String()); found {
		return x.(string), true
	}
	return "", false
}

func (r *FileContentRepository) Delete(fileId uuid.UUID) {
	r.cache.Delete(fileId.String())
}

// Count reports how many files have cached content.
func (r *FileContentRepository) Count() int {
	return r.cache.ItemCount()
}

