// Command seed loads a catalog definition file into the catalog database,
// upserting categories and chapters so it can be re-run after content edits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/levelup-hq/levelup/internal/models"
	"github.com/levelup-hq/levelup/internal/services"
)

type seedConfig struct {
	CatalogDSN  string `env:"CATALOG_DSN,notEmpty"`
	CatalogFile string `env:"CATALOG_FILE" envDefault:"catalog.yaml"`
}

type seedChapter struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Body     string `yaml:"body"`
	Position int    `yaml:"position"`
}

type seedCategory struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Position    int           `yaml:"position"`
	Chapters    []seedChapter `yaml:"chapters"`
}

type seedFile struct {
	Categories []seedCategory `yaml:"categories"`
}

func run() error {
	envFile := flag.String("env", "", "path to an env file to load before reading the environment")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", *envFile, err)
		}
	}

	var cfg seedConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	raw, err := os.ReadFile(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	db, err := services.OpenCatalogDB(cfg.CatalogDSN)
	if err != nil {
		return err
	}
	catalog, err := services.NewCatalog(db)
	if err != nil {
		return err
	}

	total := len(file.Categories)
	for _, category := range file.Categories {
		total += len(category.Chapters)
	}

	ctx := context.Background()
	bar := progressbar.Default(int64(total), "seeding catalog")
	for _, category := range file.Categories {
		err := catalog.UpsertCategory(ctx, models.Category{
			ID:          category.ID,
			Name:        category.Name,
			Description: category.Description,
			Position:    category.Position,
		})
		if err != nil {
			return err
		}
		_ = bar.Add(1)

		for _, chapter := range category.Chapters {
			err := catalog.UpsertChapter(ctx, models.Chapter{
				ID:         chapter.ID,
				CategoryID: category.ID,
				Title:      chapter.Title,
				Body:       chapter.Body,
				Position:   chapter.Position,
			})
			if err != nil {
				return err
			}
			_ = bar.Add(1)
		}
	}

	log.Printf("seeded %d categories", len(file.Categories))
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
