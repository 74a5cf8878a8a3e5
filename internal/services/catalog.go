package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/levelup-hq/levelup/internal/models"
)

// OpenCatalogDB connects to the catalog database. Postgres URLs are detected
// by scheme, anything else is treated as a sqlite path.
func OpenCatalogDB(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog db: %w", err)
	}
	return db, nil
}

// CatalogMigrator returns the migrator for the catalog schema.
func CatalogMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "0",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&models.Category{}, &models.Chapter{}, &models.ChapterProgress{},
				)
			},
		},
	})

	migrator.InitSchema(func(tx *gorm.DB) error {
		// Run by the migrator when no previous migration is detected, creating
		// the latest schema directly instead of replaying every version.
		log.Println("clean database detected, running full schema initialization")

		if tx.Dialector.Name() == "sqlite" || tx.Dialector.Name() == "sqlite3" {
			// Sqlite does not enforce foreign keys unless asked to.
			if err := tx.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
				return err
			}
		}

		return tx.AutoMigrate(
			&models.Category{}, &models.Chapter{}, &models.ChapterProgress{},
		)
	})

	return migrator
}

// Catalog provides access to the training content catalog and per-user
// progress records.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog runs pending migrations and returns a Catalog backed by db.
func NewCatalog(db *gorm.DB) (Catalog, error) {
	if err := CatalogMigrator(db).Migrate(); err != nil {
		return Catalog{}, fmt.Errorf("failed to migrate catalog db: %w", err)
	}
	return Catalog{db: db}, nil
}

// Categories lists all categories with their chapters, both ordered by
// position. Chapter bodies are omitted; they are fetched per chapter.
func (c Catalog) Categories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := c.db.WithContext(ctx).
		Preload("Chapters", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "category_id", "title", "position").Order("position ASC")
		}).
		Order("position ASC").
		Find(&categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// Chapters lists chapters ordered by position, optionally restricted to one
// category. Bodies are omitted.
func (c Catalog) Chapters(ctx context.Context, categoryID string) ([]models.Chapter, error) {
	query := c.db.WithContext(ctx).
		Select("id", "category_id", "title", "position").
		Order("position ASC")
	if categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}

	var chapters []models.Chapter
	if err := query.Find(&chapters).Error; err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	return chapters, nil
}

// Chapter fetches a single chapter including its body.
func (c Catalog) Chapter(ctx context.Context, chapterID string) (models.Chapter, error) {
	var chapter models.Chapter
	err := c.db.WithContext(ctx).Where("id = ?", chapterID).First(&chapter).Error
	if err != nil {
		return models.Chapter{}, err
	}
	return chapter, nil
}

// UpsertCategory inserts or replaces a category record. Chapters attached to
// the value are upserted separately via UpsertChapter.
func (c Catalog) UpsertCategory(ctx context.Context, category models.Category) error {
	err := c.db.WithContext(ctx).
		Omit("Chapters").
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&category).Error
	if err != nil {
		return fmt.Errorf("failed to upsert category %s: %w", category.ID, err)
	}
	return nil
}

// UpsertChapter inserts or replaces a chapter record.
func (c Catalog) UpsertChapter(ctx context.Context, chapter models.Chapter) error {
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&chapter).Error
	if err != nil {
		return fmt.Errorf("failed to upsert chapter %s: %w", chapter.ID, err)
	}
	return nil
}

// MarkChapterComplete records that the user finished a chapter. The operation
// is idempotent; the first completion time wins.
func (c Catalog) MarkChapterComplete(ctx context.Context, userID, chapterID string) error {
	var chapter models.Chapter
	if err := c.db.WithContext(ctx).Select("id").Where("id = ?", chapterID).First(&chapter).Error; err != nil {
		return err
	}

	progress := models.ChapterProgress{UserID: userID, ChapterID: chapterID}
	err := c.db.WithContext(ctx).
		Where(progress).
		Attrs(models.ChapterProgress{CompletedAt: time.Now()}).
		FirstOrCreate(&progress).Error
	if err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	return nil
}

// Progress summarizes the user's completion state across the catalog.
func (c Catalog) Progress(ctx context.Context, userID string) (models.ProgressSummary, error) {
	var records []models.ChapterProgress
	err := c.db.WithContext(ctx).Where("user_id = ?", userID).Find(&records).Error
	if err != nil {
		return models.ProgressSummary{}, fmt.Errorf("failed to load progress: %w", err)
	}

	completed := make(map[string]struct{}, len(records))
	summary := models.ProgressSummary{CompletedChapterIDs: make([]string, 0, len(records))}
	for _, rec := range records {
		completed[rec.ChapterID] = struct{}{}
		summary.CompletedChapterIDs = append(summary.CompletedChapterIDs, rec.ChapterID)
	}

	categories, err := c.Categories(ctx)
	if err != nil {
		return models.ProgressSummary{}, err
	}

	for _, category := range categories {
		progress := models.CategoryProgress{
			CategoryID: category.ID,
			Total:      len(category.Chapters),
		}
		for _, chapter := range category.Chapters {
			if _, ok := completed[chapter.ID]; ok {
				progress.Completed++
			}
		}
		summary.Categories = append(summary.Categories, progress)
	}

	return summary, nil
}
