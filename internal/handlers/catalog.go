package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/levelup-hq/levelup/internal/models"
)

type chapterResponse struct {
	models.Chapter
	HTML string `json:"html"`
}

type listChaptersQuery struct {
	CategoryID string `schema:"categoryId"`
}

func (m Main) listCategories(r *http.Request) (any, error) {
	categories, err := m.catalog.Categories(r.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	if categories == nil {
		categories = []models.Category{}
	}
	return categories, nil
}

func (m Main) listChapters(r *http.Request) (any, error) {
	query, err := parseQueryParams[listChaptersQuery](r)
	if err != nil {
		return nil, err
	}

	chapters, err := m.catalog.Chapters(r.Context(), query.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	if chapters == nil {
		chapters = []models.Chapter{}
	}
	return chapters, nil
}

// getChapter returns a chapter with its markdown body rendered to HTML.
func (m Main) getChapter(r *http.Request) (any, error) {
	chapter, err := m.catalog.Chapter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, codedErrorf(http.StatusNotFound, "chapter not found")
		}
		return nil, fmt.Errorf("failed to get chapter: %w", err)
	}

	html, err := models.RenderMarkdown(chapter.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to render chapter: %w", err)
	}

	return chapterResponse{Chapter: chapter, HTML: html}, nil
}

func (m Main) completeChapter(r *http.Request) (any, error) {
	err := m.catalog.MarkChapterComplete(r.Context(), requestUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, codedErrorf(http.StatusNotFound, "chapter not found")
		}
		return nil, fmt.Errorf("failed to mark chapter complete: %w", err)
	}
	return nil, nil
}

func (m Main) progress(r *http.Request) (any, error) {
	summary, err := m.catalog.Progress(r.Context(), requestUser(r).ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	return summary, nil
}

func (m Main) upsertCategory(r *http.Request) (any, error) {
	category, err := parseRequest[models.Category](r)
	if err != nil {
		return nil, err
	}
	category.ID = chi.URLParam(r, "id")
	if category.Name == "" {
		return nil, codedErrorf(http.StatusBadRequest, "name is required")
	}

	if err := m.catalog.UpsertCategory(r.Context(), category); err != nil {
		return nil, fmt.Errorf("failed to upsert category: %w", err)
	}
	return category, nil
}

func (m Main) upsertChapter(r *http.Request) (any, error) {
	chapter, err := parseRequest[models.Chapter](r)
	if err != nil {
		return nil, err
	}
	chapter.ID = chi.URLParam(r, "id")
	if chapter.Title == "" {
		return nil, codedErrorf(http.StatusBadRequest, "title is required")
	}
	if chapter.CategoryID == "" {
		return nil, codedErrorf(http.StatusBadRequest, "categoryId is required")
	}

	if err := m.catalog.UpsertChapter(r.Context(), chapter); err != nil {
		return nil, fmt.Errorf("failed to upsert chapter: %w", err)
	}
	return chapter, nil
}
