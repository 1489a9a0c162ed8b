package domain

import (
	"time"

	"github.com/google/uuid"
)

// Blob — неизменяемое содержимое файла, адресуемое хешем.
//
// Хеш уникален в пределах проекта: повторная загрузка тех же байтов
// в тот же проект переиспользует существующий blob.
type Blob struct {
	ID        uuid.UUID `json:"id"`
	Hash      string    `json:"hash"`
	Content   []byte    `json:"-"`
	ProjectID uuid.UUID `json:"project_id"`
	GraphID   uuid.UUID `json:"dag_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ManifestEntry — строка манифеста графа (dag_storage).
//
// Каталоги не ссылаются на blob. Манифест всегда привязан к графу,
// даже если blob общий для нескольких графов.
type ManifestEntry struct {
	ID      uuid.UUID  `json:"id"`
	GraphID uuid.UUID  `json:"dag_id"`
	Path    string     `json:"path"`
	BlobID  *uuid.UUID `json:"blob_id,omitempty"`
	IsDir   bool       `json:"is_dir"`
}

// ManifestItem — строка манифеста вместе с содержимым blob'а.
// Используется при материализации.
type ManifestItem struct {
	ManifestEntry
	Content []byte
}

// Library — сторонняя зависимость проекта, найденная при снимке.
type Library struct {
	GraphID uuid.UUID `json:"dag_id"`
	Name    string    `json:"library"`
	Version string    `json:"version"`
}
