package store

import (
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type BookModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	Title         string `gorm:"size:200;not null"`
	Author        string `gorm:"size:100;not null"`
	Genre         string `gorm:"size:50"`
	YearPublished *int
	Summary       string         `gorm:"type:text"`
	PDFFilePath   string         `gorm:"size:255"`
	StorageKey    string         `gorm:"size:255"`
	SummaryMeta   datatypes.JSON `gorm:"type:jsonb"`
}

type ReviewModel struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	BookID     int64 `gorm:"not null;index"`
	UserID     *int64
	ReviewText string `gorm:"type:text;not null"`
	Rating     int    `gorm:"not null"`
}
