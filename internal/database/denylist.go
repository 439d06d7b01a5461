package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DenylistRepository stores the VeRO brand denylist. The list is read once
// per assembly pass; submission gating works on the loaded snapshot.
type DenylistRepository struct {
	db *DB
}

func NewDenylistRepository(db *DB) *DenylistRepository {
	return &DenylistRepository{db: db}
}

// Brands returns every denylisted brand name in insertion order. Order is
// part of the contract: brand stripping must process entries
// deterministically.
func (r *DenylistRepository) Brands(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT brand FROM vero_brand ORDER BY created_at, brand`)
	if err != nil {
		return nil, fmt.Errorf("failed to query denylist: %w", err)
	}
	defer rows.Close()

	var brands []string
	for rows.Next() {
		var brand string
		if err := rows.Scan(&brand); err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, brand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating denylist rows: %w", err)
	}
	return brands, nil
}

// Add inserts a brand, ignoring duplicates.
func (r *DenylistRepository) Add(ctx context.Context, brand string) error {
	brand = strings.TrimSpace(brand)
	if len(brand) <= 1 {
		return fmt.Errorf("brand name too short: %q", brand)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO vero_brand (brand, created_at) VALUES ($1, $2)
		 ON CONFLICT (brand) DO NOTHING`,
		brand, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add brand: %w", err)
	}
	return nil
}
