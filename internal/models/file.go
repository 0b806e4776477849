package models

import (
	"time"

	"github.com/google/uuid"
)

type FileStatus string

const (
	StatusPending    FileStatus = "Pending"
	StatusProcessing FileStatus = "Processing"
	StatusEmbedded   FileStatus = "Embedded"
	StatusStored     FileStatus = "Stored"
	StatusError      FileStatus = "Error"
)

// InFlight reports whether a processing run currently owns the file.
func (s FileStatus) InFlight() bool {
	return s == StatusProcessing || s == StatusEmbedded
}

type File struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Filename     string     `json:"filename" gorm:"not null"`
	FileType     string     `json:"file_type" gorm:"type:varchar(8);not null"` // pdf | txt
	ContentType  string     `json:"-" gorm:"not null"`
	FileSize     int64      `json:"file_size" gorm:"not null"` // bytes
	ObjectKey    string     `json:"-" gorm:"not null"`         // object store key
	Status       FileStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	TotalChunks  int        `json:"total_chunks" gorm:"not null;default:0"`
	UploadDate   time.Time  `json:"upload_date" gorm:"column:upload_date;autoCreateTime"`
	UpdatedAt    time.Time  `json:"-" gorm:"autoUpdateTime"`
}
