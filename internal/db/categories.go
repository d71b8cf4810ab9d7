package db

import (
	"context"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/model"
)

const categorySelect = `SELECT id, name, color, icon_url, image_filter, image_seed_offset, created_at FROM categories`

type categoryRow struct {
	ID              int64     `db:"id"`
	Name            string    `db:"name"`
	Color           string    `db:"color"`
	IconURL         string    `db:"icon_url"`
	ImageFilter     string    `db:"image_filter"`
	ImageSeedOffset int       `db:"image_seed_offset"`
	CreatedAt       time.Time `db:"created_at"`
}

// DefaultCategories are inserted into an empty database by SeedCategories.
var DefaultCategories = []model.Category{
	{Name: "Work", Color: "#2563eb", IconURL: "/icons/briefcase.svg", ImageFilter: model.ImageFilterDefault, ImageSeedOffset: 0},
	{Name: "Personal", Color: "#16a34a", IconURL: "/icons/user.svg", ImageFilter: model.ImageFilterSepia, ImageSeedOffset: 10},
	{Name: "Shopping", Color: "#ea580c", IconURL: "/icons/cart.svg", ImageFilter: model.ImageFilterGrayscale, ImageSeedOffset: 20},
	{Name: "Health", Color: "#dc2626", IconURL: "/icons/heart.svg", ImageFilter: model.ImageFilterBlur, ImageSeedOffset: 30},
}

func (s *Store) CreateCategory(ctx context.Context, category model.Category) (model.Category, error) {
	filter := category.ImageFilter
	if filter == "" {
		filter = model.ImageFilterDefault
	}

	result, err := s.DB.ExecContext(ctx, `INSERT INTO categories
    (name, color, icon_url, image_filter, image_seed_offset, created_at)
    VALUES (?, ?, ?, ?, ?, ?)`,
		category.Name, category.Color, category.IconURL, string(filter), category.ImageSeedOffset, s.now())
	if err != nil {
		return model.Category{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Category{}, err
	}

	var row categoryRow
	if err := s.DB.GetContext(ctx, &row, categorySelect+" WHERE id = ?", id); err != nil {
		return model.Category{}, err
	}
	return mapCategory(row), nil
}

// SeedCategories inserts DefaultCategories when the table is empty.
func (s *Store) SeedCategories(ctx context.Context) error {
	var count int
	if err := s.DB.GetContext(ctx, &count, "SELECT COUNT(*) FROM categories"); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, category := range DefaultCategories {
		if _, err := s.CreateCategory(ctx, category); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, query Query) ([]model.Category, error) {
	stmt, args, err := query.build(TableCategories, categorySelect)
	if err != nil {
		return nil, err
	}

	var rows []categoryRow
	if err := s.DB.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, err
	}

	categories := make([]model.Category, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, mapCategory(row))
	}
	return categories, nil
}

func mapCategory(row categoryRow) model.Category {
	return model.Category{
		ID:              row.ID,
		Name:            row.Name,
		Color:           row.Color,
		IconURL:         row.IconURL,
		ImageFilter:     model.ImageFilter(row.ImageFilter),
		ImageSeedOffset: row.ImageSeedOffset,
		CreatedAt:       row.CreatedAt.UTC(),
	}
}
