package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-checkout/internal/store"
)

const productColumns = `id, name, image_url, price, stock, COALESCE(category_id, '00000000-0000-0000-0000-000000000000'::uuid)`

func scanProduct(row pgx.Row) (store.Product, error) {
	var p store.Product
	err := row.Scan(&p.ID, &p.Name, &p.ImageURL, &p.Price, &p.Stock, &p.CategoryID)
	return p, err
}

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (store.Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return store.Product{}, notFound(err)
	}
	return p, nil
}

// LockProducts locks rows in id order so concurrent checkouts over
// overlapping carts cannot deadlock.
func (q *Queries) LockProducts(ctx context.Context, ids []uuid.UUID) ([]store.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Product, error) {
		return scanProduct(row)
	})
}

func (q *Queries) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := q.db.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrInsufficientStock
}

func (q *Queries) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := q.db.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *Queries) GetCart(ctx context.Context, userID uuid.UUID) ([]store.CartItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, product_id, quantity, created_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.CartItem, error) {
		var it store.CartItem
		err := row.Scan(&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.CreatedAt)
		return it, err
	})
}

func (q *Queries) ClearCart(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}
