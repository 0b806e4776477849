package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type Chunk struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	FileID      uuid.UUID       `json:"file_id" gorm:"type:uuid;not null;uniqueIndex:idx_chunks_file_number"`
	File        *File           `json:"-" gorm:"constraint:OnDelete:CASCADE;foreignKey:FileID;references:ID"`
	ChunkNumber int             `json:"chunk_number" gorm:"not null;uniqueIndex:idx_chunks_file_number"` // 1-based
	Text        string          `json:"text" gorm:"type:text;not null"`
	TokenCount  int             `json:"token_count" gorm:"not null"`
	Embedding   pgvector.Vector `json:"-" gorm:"type:vector;not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

// SearchHit is one ranked chunk returned by a similarity query.
type SearchHit struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	TokenCount  int       `json:"token_count"`
	ChunkNumber int       `json:"chunk_number"`
	FileID      uuid.UUID `json:"file_id"`
	Filename    string    `json:"filename"`
	Similarity  float64   `json:"similarity"` // cosine, clamped to [0,1]
	CreatedAt   time.Time `json:"-"`
}
