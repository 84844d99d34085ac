package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coffee-store/internal/domain/catalog"
)

type catalogQueries struct {
	list      string
	get       string
	getByIDs  string
	insert    string
	update    string
	upsert    string
	resetSeq  string
	deleteOne string
}

func newCatalogQueries(table string) catalogQueries {
	return catalogQueries{
		list:     fmt.Sprintf(`SELECT id, name, price FROM %s ORDER BY id`, table),
		get:      fmt.Sprintf(`SELECT id, name, price FROM %s WHERE id = $1`, table),
		getByIDs: fmt.Sprintf(`SELECT id, name, price FROM %s WHERE id = ANY($1)`, table),
		insert: fmt.Sprintf(`INSERT INTO %s (name, price) VALUES ($1, $2)
			RETURNING id, name, price`, table),
		update: fmt.Sprintf(`UPDATE %s SET name = $2, price = $3, updated_at = now()
			WHERE id = $1 RETURNING id, name, price`, table),
		upsert: fmt.Sprintf(`INSERT INTO %s (id, name, price) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = now()`, table),
		resetSeq: fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'),
			GREATEST((SELECT MAX(id) FROM %[1]s), 1))`, table),
		deleteOne: fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table),
	}
}

var catalogTables = map[catalog.Kind]catalogQueries{
	catalog.KindDrink:   newCatalogQueries("drinks"),
	catalog.KindTopping: newCatalogQueries("toppings"),
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
// Drinks and toppings live in separate tables with independent ids.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func queriesFor(kind catalog.Kind) (catalogQueries, error) {
	q, ok := catalogTables[kind]
	if !ok {
		return catalogQueries{}, errors.Errorf("unknown catalog kind %q", kind)
	}
	return q, nil
}

// List returns all items of kind ordered by id.
func (r *CatalogRepository) List(ctx context.Context, kind catalog.Kind) ([]catalog.Item, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, q.list)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s items", kind)
	}
	return pgx.CollectRows(rows, itemScanner(kind))
}

// Get returns a single item or a *catalog.ItemNotFoundError.
func (r *CatalogRepository) Get(ctx context.Context, kind catalog.Kind, id int64) (*catalog.Item, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, q.get, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s %d", kind, id)
	}
	return collectItem(rows, kind, id)
}

// GetByIDs returns the items matching any of ids. Missing ids are simply
// absent from the result.
func (r *CatalogRepository) GetByIDs(ctx context.Context, kind catalog.Kind, ids []int64) ([]catalog.Item, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, q.getByIDs, ids)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s items by ids", kind)
	}
	return pgx.CollectRows(rows, itemScanner(kind))
}

// Create inserts a new item and returns it with its assigned id.
func (r *CatalogRepository) Create(ctx context.Context, kind catalog.Kind, in catalog.Input) (*catalog.Item, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, q.insert, in.Name, in.Price)
	if err != nil {
		return nil, errors.Wrapf(err, "insert %s", kind)
	}
	it, err := pgx.CollectExactlyOneRow(rows, itemScanner(kind))
	if err != nil {
		return nil, errors.Wrapf(err, "insert %s", kind)
	}
	return &it, nil
}

// Update replaces name and price of an existing item.
func (r *CatalogRepository) Update(ctx context.Context, kind catalog.Kind, id int64, in catalog.Input) (*catalog.Item, error) {
	q, err := queriesFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, q.update, id, in.Name, in.Price)
	if err != nil {
		return nil, errors.Wrapf(err, "update %s %d", kind, id)
	}
	return collectItem(rows, kind, id)
}

// Delete removes an item if present.
func (r *CatalogRepository) Delete(ctx context.Context, kind catalog.Kind, id int64) error {
	q, err := queriesFor(kind)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, q.deleteOne, id); err != nil {
		return errors.Wrapf(err, "delete %s %d", kind, id)
	}
	return nil
}

// Upsert writes items with fixed ids in one transaction and moves the id
// sequence past the largest id. Used for seeding.
func (r *CatalogRepository) Upsert(ctx context.Context, kind catalog.Kind, items []catalog.Item) error {
	q, err := queriesFor(kind)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, it := range items {
			batch.Queue(q.upsert, it.ID, it.Name, it.Price)
		}
		batch.Queue(q.resetSeq)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "upsert %s items", kind)
		}
		return nil
	})
}

func collectItem(rows pgx.Rows, kind catalog.Kind, id int64) (*catalog.Item, error) {
	it, err := pgx.CollectExactlyOneRow(rows, itemScanner(kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.ItemNotFoundError{Kind: kind, ID: id}
		}
		return nil, errors.Wrapf(err, "get %s %d", kind, id)
	}
	return &it, nil
}

func itemScanner(kind catalog.Kind) pgx.RowToFunc[catalog.Item] {
	return func(row pgx.CollectableRow) (catalog.Item, error) {
		it := catalog.Item{Kind: kind}
		err := row.Scan(&it.ID, &it.Name, &it.Price)
		return it, err
	}
}
