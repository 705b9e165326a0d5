package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/devkyu/platewatch/internal/common"
	"github.com/devkyu/platewatch/internal/models"
)

func (r *Repository) CreateRestaurant(ctx context.Context, rest *models.Restaurant) error {
	query := `
		INSERT INTO restaurants (name, url, review_url, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		rest.Name,
		rest.URL,
		rest.ReviewURL,
		rest.Address,
	).Scan(&rest.ID, &rest.CreatedAt, &rest.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create restaurant: %w", err)
	}
	return nil
}

func (r *Repository) GetRestaurantByID(ctx context.Context, id int64) (*models.Restaurant, error) {
	query := `
		SELECT id, name, url, review_url, address, created_at, updated_at
		FROM restaurants
		WHERE id = $1
	`

	var rest models.Restaurant
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&rest.ID,
		&rest.Name,
		&rest.URL,
		&rest.ReviewURL,
		&rest.Address,
		&rest.CreatedAt,
		&rest.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrRestaurantNotFound
		}
		return nil, err
	}

	return &rest, nil
}

// ReplaceMenuItems swaps a restaurant's menu for the freshly crawled one in a
// single transaction so readers never see a half-written menu.
func (r *Repository) ReplaceMenuItems(ctx context.Context, restaurantID int64, items []models.MenuItem) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM menu_items WHERE restaurant_id = $1`, restaurantID); err != nil {
			return fmt.Errorf("failed to clear menu items: %w", err)
		}

		query := `
			INSERT INTO menu_items (restaurant_id, name, price, description, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`
		for _, item := range items {
			if _, err := tx.Exec(ctx, query, restaurantID, item.Name, item.Price, item.Description); err != nil {
				return fmt.Errorf("failed to insert menu item: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) GetMenuItems(ctx context.Context, restaurantID int64) ([]models.MenuItem, error) {
	query := `
		SELECT id, restaurant_id, name, price, description, created_at
		FROM menu_items
		WHERE restaurant_id = $1
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.MenuItem
	for rows.Next() {
		var item models.MenuItem
		err := rows.Scan(
			&item.ID,
			&item.RestaurantID,
			&item.Name,
			&item.Price,
			&item.Description,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (r *Repository) SaveReviews(ctx context.Context, restaurantID int64, reviews []models.Review) (int, error) {
	query := `
		INSERT INTO reviews (restaurant_id, author, rating, content, written_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (restaurant_id, author, content) DO NOTHING
	`

	saved := 0
	for _, rev := range reviews {
		tag, err := r.db.Pool().Exec(ctx, query,
			restaurantID,
			rev.Author,
			rev.Rating,
			rev.Content,
			rev.WrittenAt,
		)
		if err != nil {
			return saved, fmt.Errorf("failed to insert review: %w", err)
		}
		saved += int(tag.RowsAffected())
	}

	return saved, nil
}

func (r *Repository) GetReviews(ctx context.Context, restaurantID int64, limit int) ([]models.Review, error) {
	query := `
		SELECT id, restaurant_id, author, rating, content, written_at, created_at
		FROM reviews
		WHERE restaurant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, restaurantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var rev models.Review
		err := rows.Scan(
			&rev.ID,
			&rev.RestaurantID,
			&rev.Author,
			&rev.Rating,
			&rev.Content,
			&rev.WrittenAt,
			&rev.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, rev)
	}

	return reviews, rows.Err()
}

func (r *Repository) CreateReviewSummary(ctx context.Context, summary *models.ReviewSummary) error {
	query := `
		INSERT INTO review_summaries (restaurant_id, content, model, tokens_used, review_count, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		summary.RestaurantID,
		summary.Content,
		summary.Model,
		summary.TokensUsed,
		summary.ReviewCount,
	).Scan(&summary.ID, &summary.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create review summary: %w", err)
	}
	return nil
}

func (r *Repository) CreateSnapshot(ctx context.Context, snap *models.Snapshot) error {
	query := `
		INSERT INTO snapshots (restaurant_id, job_id, kind, storage_key, url, content_type, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		snap.RestaurantID,
		snap.JobID,
		snap.Kind,
		snap.StorageKey,
		snap.URL,
		snap.ContentType,
		snap.SizeBytes,
	).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create snapshot record: %w", err)
	}
	return nil
}
