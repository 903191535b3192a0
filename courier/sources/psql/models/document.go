package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document is one schema-less record. Path is "<collection>/<doc_id>"; the
// collection may itself be nested ("rooms/r1/messages").
type Document struct {
	Path       string         `json:"path" gorm:"type:varchar(1024);primaryKey"`
	Collection string         `json:"collection" gorm:"type:varchar(1024);not null;index"`
	DocID      string         `json:"doc_id" gorm:"type:varchar(255);not null"`
	Data       datatypes.JSON `json:"data" gorm:"not null"`
	CreateTime time.Time      `json:"create_time" gorm:"not null"`
	UpdateTime time.Time      `json:"update_time" gorm:"not null"`
}

func (Document) TableName() string {
	return "documents"
}
