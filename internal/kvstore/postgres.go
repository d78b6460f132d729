package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv_items (
		pk         TEXT COLLATE "C" NOT NULL,
		sk         TEXT COLLATE "C" NOT NULL,
		index_pk   TEXT COLLATE "C",
		index_sk   TEXT COLLATE "C",
		data       JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (pk, sk)
	)`,
	`CREATE INDEX IF NOT EXISTS kv_items_index_key_idx ON kv_items (index_pk, index_sk) WHERE index_pk IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS kv_items_index_sk_idx ON kv_items (index_sk) WHERE index_pk IS NOT NULL`,
}

const itemColumns = `pk, sk, COALESCE(index_pk, ''), COALESCE(index_sk, ''), data`

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the item table and its indexes when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) PutIfAbsent(ctx context.Context, item Item) error {
	const query = `
		INSERT INTO kv_items (pk, sk, index_pk, index_sk, data, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::jsonb, NOW(), NOW())
		ON CONFLICT (pk, sk) DO NOTHING
	`
	cmd, err := p.pool.Exec(ctx, query, item.PK, item.SK, item.IndexPK, item.IndexSK, string(item.Data))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (p *Postgres) Put(ctx context.Context, item Item) error {
	const query = `
		INSERT INTO kv_items (pk, sk, index_pk, index_sk, data, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::jsonb, NOW(), NOW())
		ON CONFLICT (pk, sk)
		DO UPDATE SET
			index_pk = EXCLUDED.index_pk,
			index_sk = EXCLUDED.index_sk,
			data = EXCLUDED.data,
			updated_at = NOW()
	`
	_, err := p.pool.Exec(ctx, query, item.PK, item.SK, item.IndexPK, item.IndexSK, string(item.Data))
	return err
}

func (p *Postgres) Get(ctx context.Context, key Key) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM kv_items WHERE pk = $1 AND sk = $2`

	item, err := scanItem(p.pool.QueryRow(ctx, query, key.PK, key.SK))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (p *Postgres) QueryByPrefix(ctx context.Context, pk string, skPrefix string, opts QueryOptions) ([]Item, error) {
	order := "ASC"
	if opts.Descending {
		order = "DESC"
	}

	query := `SELECT ` + itemColumns + `
		FROM kv_items
		WHERE pk = $1 AND starts_with(sk, $2) AND ($3 = '' OR sk >= $3)
		ORDER BY sk ` + order + `
		LIMIT NULLIF($4, 0)`

	rows, err := p.pool.Query(ctx, query, pk, skPrefix, opts.StartSK, opts.Limit)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (p *Postgres) QueryByIndex(ctx context.Context, indexPK string, indexSK string, limit int) ([]Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM kv_items
		WHERE index_pk = $1 AND index_sk = $2
		ORDER BY pk, sk
		LIMIT NULLIF($3, 0)`

	rows, err := p.pool.Query(ctx, query, indexPK, indexSK, limit)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (p *Postgres) ScanIndex(ctx context.Context, indexSK string, opts ScanOptions) ([]Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM kv_items
		WHERE index_pk IS NOT NULL AND index_sk = $1
		  AND ($2::text = '' OR (pk, sk) > ($2::text, $3::text))
		ORDER BY pk, sk
		LIMIT NULLIF($4, 0)`

	rows, err := p.pool.Query(ctx, query, indexSK, opts.After.PK, opts.After.SK, opts.Limit)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// Update applies the merge and the conditions in one statement; the row lock taken by
// UPDATE serializes concurrent writers on the same key.
func (p *Postgres) Update(ctx context.Context, key Key, update Update) (Item, error) {
	set := update.Set
	if set == nil {
		set = map[string]any{}
	}
	patch, err := json.Marshal(set)
	if err != nil {
		return Item{}, fmt.Errorf("encode update: %w", err)
	}

	args := []any{key.PK, key.SK, string(patch), update.IndexSK}
	var where strings.Builder
	where.WriteString("pk = $1 AND sk = $2")
	for _, cond := range update.Conditions {
		args = append(args, cond.Attr, cond.Equals)
		fmt.Fprintf(&where, " AND data->>($%d::text) = $%d::text", len(args)-1, len(args))
	}

	query := `UPDATE kv_items
		SET data = data || $3::jsonb,
		    index_sk = COALESCE($4, index_sk),
		    updated_at = NOW()
		WHERE ` + where.String() + `
		RETURNING ` + itemColumns

	item, err := scanItem(p.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Item{}, err
	}

	// Zero rows: the key is missing or a condition did not hold.
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM kv_items WHERE pk = $1 AND sk = $2)`, key.PK, key.SK).Scan(&exists); err != nil {
		return Item{}, err
	}
	if exists {
		return Item{}, ErrConditionFailed
	}
	return Item{}, ErrNotFound
}

func (p *Postgres) Delete(ctx context.Context, key Key) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM kv_items WHERE pk = $1 AND sk = $2`, key.PK, key.SK)
	return err
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	var data []byte
	if err := row.Scan(&item.PK, &item.SK, &item.IndexPK, &item.IndexSK, &data); err != nil {
		return Item{}, err
	}
	item.Data = data
	return item, nil
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
