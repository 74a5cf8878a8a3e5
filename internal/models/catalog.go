package models

import "time"

// Category groups related training chapters. Position controls the display
// order within the catalog.
type Category struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null"`
	Description string    `json:"description"`
	Position    int       `json:"position"`
	Chapters    []Chapter `json:"chapters,omitempty" gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
}

// Chapter is a single training unit. Body holds the markdown source; rendered
// HTML is produced on demand and never stored.
type Chapter struct {
	ID         string `json:"id" gorm:"primaryKey"`
	CategoryID string `json:"categoryId" gorm:"index;not null"`
	Title      string `json:"title" gorm:"not null"`
	Body       string `json:"body,omitempty"`
	Position   int    `json:"position"`
}

// ChapterProgress records that a user finished a chapter. Marking a chapter
// complete twice keeps the first completion time.
type ChapterProgress struct {
	UserID      string    `json:"userId" gorm:"primaryKey"`
	ChapterID   string    `json:"chapterId" gorm:"primaryKey"`
	CompletedAt time.Time `json:"completedAt"`
}

// CategoryProgress summarizes completion within one category.
type CategoryProgress struct {
	CategoryID string `json:"categoryId"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
}

// ProgressSummary is the per-user view of catalog completion.
type ProgressSummary struct {
	CompletedChapterIDs []string           `json:"completedChapterIds"`
	Categories          []CategoryProgress `json:"categories"`
}
