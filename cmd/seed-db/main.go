// Command seed-db loads the product catalog and a few demo coupons into
// PostgreSQL. It is idempotent: existing rows are updated in place.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/softdomifood/order-intake/internal/repository"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	IsAvailable bool            `json:"isAvailable"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, description, price, category, is_available)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    name         = EXCLUDED.name,
    description  = EXCLUDED.description,
    price        = EXCLUDED.price,
    category     = EXCLUDED.category,
    is_available = EXCLUDED.is_available,
    updated_at   = NOW()
`

func seedProducts(ctx context.Context, pool execer, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, p := range products {
		g.Go(func() error {
			if _, err := pool.Exec(gctx, upsertProductSQL,
				p.ID, p.Name, p.Description, p.Price, p.Category, p.IsAvailable,
			); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}

			slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
			return nil
		})
	}

	return g.Wait()
}

const upsertCouponSQL = `
INSERT INTO coupons (
    id, code, description, discount_type, amount, percentage,
    valid_from, valid_to, max_uses, per_user_limit, applicable_user_id, is_active
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (code) DO UPDATE SET
    description        = EXCLUDED.description,
    discount_type      = EXCLUDED.discount_type,
    amount             = EXCLUDED.amount,
    percentage         = EXCLUDED.percentage,
    valid_from         = EXCLUDED.valid_from,
    valid_to           = EXCLUDED.valid_to,
    max_uses           = EXCLUDED.max_uses,
    per_user_limit     = EXCLUDED.per_user_limit,
    applicable_user_id = EXCLUDED.applicable_user_id,
    is_active          = EXCLUDED.is_active,
    updated_at         = NOW()
`

type couponSeed struct {
	code        string
	description string
	kind        string
	amount      *decimal.Decimal
	percentage  *decimal.Decimal
	validFrom   *time.Time
	validTo     *time.Time
	maxUses     *int
	perUser     *int
}

func seedCoupons(ctx context.Context, pool execer) error {
	slog.Info("seeding demo coupons")

	pct20 := decimal.NewFromInt(20)
	flat5000 := decimal.NewFromInt(5000)
	welcomePct := decimal.NewFromInt(10)
	oneUse := 1

	coupons := []couponSeed{
		{
			code:        "SAVE20",
			description: "20% off entire order",
			kind:        "PERCENTAGE",
			percentage:  &pct20,
		},
		{
			code:        "FLAT5000",
			description: "5000 off entire order",
			kind:        "AMOUNT",
			amount:      &flat5000,
		},
		{
			code:        "WELCOME10",
			description: "10% off for first order",
			kind:        "PERCENTAGE",
			percentage:  &welcomePct,
			perUser:     &oneUse,
		},
	}

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsertCouponSQL,
			uuid.New().String(), c.code, c.description, c.kind,
			c.amount, c.percentage, c.validFrom, c.validTo,
			c.maxUses, c.perUser, nil, true,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("description", c.description))
	}

	return nil
}
