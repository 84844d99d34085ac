package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"flag"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coffee-store/db"
	"github.com/xenking/coffee-store/internal/domain/auth"
	"github.com/xenking/coffee-store/internal/domain/catalog"
	"github.com/xenking/coffee-store/internal/repository"
)

const bloomFPR = 0.001

type options struct {
	databaseURL string
	catalogFile string
	apiKey      string
	pepper      string
	userID      string
	admin       bool
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog-file", "", "catalog JSON file, gzip when it ends in .gz (default: embedded catalog)")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or COFFEE_SEED_API_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COFFEE_API_KEY_PEPPER env)")
	flag.StringVar(&opts.userID, "user-id", "barista", "owner id the seeded API key resolves to")
	flag.BoolVar(&opts.admin, "admin", true, "grant the seeded key catalog write access")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("COFFEE_SEED_API_KEY")
	}
	if opts.pepper == "" {
		opts.pepper = os.Getenv("COFFEE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	data, err := readCatalog(opts.catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}
	drinks, toppings, err := parseCatalog(data)
	if err != nil {
		return errors.Wrap(err, "parse catalog")
	}

	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	items := repository.NewCatalogRepository(pool)
	g, gctx := errgroup.WithContext(ctx)
	for kind, batch := range map[catalog.Kind][]catalog.Item{
		catalog.KindDrink:   drinks,
		catalog.KindTopping: toppings,
	} {
		g.Go(func() error {
			if err := items.Upsert(gctx, kind, batch); err != nil {
				return errors.Wrapf(err, "upsert %s items", kind)
			}
			lg.Info("Upserted catalog items",
				zap.String("kind", string(kind)),
				zap.Int("count", len(batch)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if opts.apiKey == "" {
		lg.Info("No API key given, skipping")
		return nil
	}
	key := seedKey(opts)
	if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return errors.Wrap(err, "upsert api key")
	}
	lg.Info("Upserted API key",
		zap.String("id", key.ID),
		zap.String("user_id", key.UserID),
		zap.Strings("scopes", key.Scopes),
	)
	return nil
}

func seedKey(opts options) *auth.APIKey {
	k := &auth.APIKey{
		ID:      "default",
		UserID:  opts.userID,
		KeyHash: auth.HashKey(opts.pepper, opts.apiKey),
		Name:    "Default seed key",
		Scopes:  []string{},
	}
	if opts.admin {
		k.Scopes = append(k.Scopes, auth.ScopeCatalogWrite)
	}
	return k
}

// readCatalog returns the embedded catalog when path is empty.
func readCatalog(path string) ([]byte, error) {
	if path == "" {
		return db.SeedCatalog, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return io.ReadAll(r)
}

func parseCatalog(data []byte) (drinks, toppings []catalog.Item, err error) {
	err = jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var kind catalog.Kind
		switch key {
		case "drinks":
			kind = catalog.KindDrink
		case "toppings":
			kind = catalog.KindTopping
		default:
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			it, err := parseItem(d, kind)
			if err != nil {
				return err
			}
			if kind == catalog.KindDrink {
				drinks = append(drinks, it)
			} else {
				toppings = append(toppings, it)
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	if err := checkDuplicates(catalog.KindDrink, drinks); err != nil {
		return nil, nil, err
	}
	if err := checkDuplicates(catalog.KindTopping, toppings); err != nil {
		return nil, nil, err
	}
	return drinks, toppings, nil
}

func parseItem(d *jx.Decoder, kind catalog.Kind) (catalog.Item, error) {
	it := catalog.Item{Kind: kind}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = d.Int64()
		case "name":
			it.Name, err = d.Str()
		case "price":
			var raw []byte
			if d.Next() == jx.String {
				var s string
				s, err = d.Str()
				raw = []byte(s)
			} else {
				var n jx.Num
				n, err = d.Num()
				raw = n
			}
			if err != nil {
				return err
			}
			it.Price, err = decimal.NewFromString(string(bytes.TrimSpace(raw)))
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return catalog.Item{}, err
	}

	switch {
	case it.ID <= 0:
		return catalog.Item{}, errors.Errorf("%s %q: id must be positive", kind, it.Name)
	case strings.TrimSpace(it.Name) == "":
		return catalog.Item{}, errors.Errorf("%s %d: name is blank", kind, it.ID)
	}
	if err := catalog.ValidatePrice(it.Price); err != nil {
		return catalog.Item{}, errors.Wrapf(err, "%s %d", kind, it.ID)
	}
	return it, nil
}

// checkDuplicates rejects a batch that lists the same id twice. The bloom
// filter answers most ids in constant time; only its positives are
// confirmed against the items already seen.
func checkDuplicates(kind catalog.Kind, items []catalog.Item) error {
	if len(items) == 0 {
		return nil
	}
	bf := bloom.NewWithEstimates(uint(len(items)), bloomFPR)
	var key [8]byte
	for i, it := range items {
		binary.BigEndian.PutUint64(key[:], uint64(it.ID))
		if !bf.TestAndAdd(key[:]) {
			continue
		}
		if slices.ContainsFunc(items[:i], func(prev catalog.Item) bool { return prev.ID == it.ID }) {
			return errors.Errorf("%s %d listed more than once", kind, it.ID)
		}
	}
	return nil
}
