package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"civicbounty-be/models"
	"civicbounty-be/store"
)

// Categories is the registry of issue categories.
type Categories struct {
	store store.CategoryStore
}

func NewCategories(s store.CategoryStore) *Categories {
	return &Categories{store: s}
}

func (c *Categories) List(ctx context.Context) ([]models.Category, error) {
	return c.store.ListCategories(ctx)
}

// Lookup returns a ValidationError for an empty or unregistered name.
func (c *Categories) Lookup(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("category", "Category is required.")
	}
	cat, err := c.store.GetCategoryByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalid("category", fmt.Sprintf("Unknown category %q.", name))
	}
	return cat, err
}

// Seed upserts the categories by name.
func (c *Categories) Seed(ctx context.Context, categories []models.Category) error {
	for _, cat := range categories {
		if err := c.store.UpsertCategory(ctx, &cat); err != nil {
			return fmt.Errorf("upsert category %s: %w", cat.Name, err)
		}
	}
	return nil
}
