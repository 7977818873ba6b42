// Package catalog exposes the read side of the product table that order
// creation needs: authoritative prices and display data for snapshotting.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrProductNotFound = errors.New("product not found")

// Snapshot is the slice of a product an order line item captures at creation.
type Snapshot struct {
	ProductID string
	Name      string
	Price     int64 // sale price, minor units
	Thumbnail string
}

type Store interface {
	Get(ctx context.Context, productID string) (*Snapshot, error)
}

type postgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Get(ctx context.Context, productID string) (*Snapshot, error) {
	query := `SELECT id, name, sale_price, thumbnail FROM products WHERE id = $1`

	var snap Snapshot
	err := s.pool.QueryRow(ctx, query, productID).Scan(&snap.ProductID, &snap.Name, &snap.Price, &snap.Thumbnail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &snap, nil
}
