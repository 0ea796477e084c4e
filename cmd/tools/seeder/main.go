package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/noah-isme/toko-checkout/internal/auth"
	"github.com/noah-isme/toko-checkout/internal/database"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

type product struct {
	Name  string
	Image string
	Price int64
	Stock int
}

type seedCoupon struct {
	Code       string
	Type       string
	Value      int64
	PercentBps *int
	MinAmount  *int64
}

func main() {
	migrations := flag.String("migrations", "file://migrations", "migration source; empty skips migrations")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed demo token")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, dbURL, "toko-checkout-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if *migrations != "" {
		if err := database.RunMigrations(pool, *migrations); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	demoUser := uuid.MustParse("5b0d3c3e-2f7a-4d1c-9c55-0d7f2a7f6e01")
	err = pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ids, err := seedProducts(ctx, tx)
		if err != nil {
			return err
		}
		if err := seedCoupons(ctx, tx); err != nil {
			return err
		}
		return seedCart(ctx, tx, demoUser, ids[:2])
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	logger.Info().Str("user_id", demoUser.String()).Msg("seeding completed")

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		printToken(secret, demoUser, *tokenTTL)
	}
}

func seedProducts(ctx context.Context, tx pgx.Tx) ([]uuid.UUID, error) {
	products := []product{
		{"Sony WH-1000XM5", "https://images.unsplash.com/photo-1618366712010-f4ae9c647dcb?w=800", 5000000, 150},
		{"Nike Air Force 1", "https://images.unsplash.com/photo-1542291026-7eec264c27ff?w=800", 1500000, 200},
		{"Dyson V15 Detect", "https://images.unsplash.com/photo-1556911220-e15b29be8c8f?w=800", 12000000, 30},
		{"Kaos Hitam Polos", "https://images.unsplash.com/photo-1583743814966-8936f5b7be1a?w=800", 100000, 500},
	}
	ids := make([]uuid.UUID, 0, len(products))
	for _, p := range products {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO products (id, name, image_url, price, stock)
			VALUES (gen_random_uuid(), $1, $2, $3, $4)
			RETURNING id`, p.Name, p.Image, p.Price, p.Stock).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("seed product %s: %w", p.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedCoupons(ctx context.Context, tx pgx.Tx) error {
	tenPercent := 1000
	minSpend := int64(1000000)
	coupons := []seedCoupon{
		{Code: "HEMAT10", Type: "PERCENTAGE", PercentBps: &tenPercent},
		{Code: "POTONG50K", Type: "FIXED_AMOUNT", Value: 50000, MinAmount: &minSpend},
		{Code: "ONGKIRGRATIS", Type: "FREE_SHIPPING"},
	}
	for _, c := range coupons {
		_, err := tx.Exec(ctx, `
			INSERT INTO coupons (code, discount_type, value, percent_bps, minimum_amount, starts_at, ends_at)
			VALUES ($1, $2, $3, $4, $5, now(), now() + INTERVAL '1 year')
			ON CONFLICT (code) DO NOTHING`, c.Code, c.Type, c.Value, c.PercentBps, c.MinAmount)
		if err != nil {
			return fmt.Errorf("seed coupon %s: %w", c.Code, err)
		}
	}
	return nil
}

func seedCart(ctx context.Context, tx pgx.Tx, userID uuid.UUID, productIDs []uuid.UUID) error {
	for _, id := range productIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO cart_items (user_id, product_id, quantity)
			VALUES ($1, $2, 1)
			ON CONFLICT (user_id, product_id) DO NOTHING`, userID, id)
		if err != nil {
			return fmt.Errorf("seed cart: %w", err)
		}
	}
	return nil
}

func printToken(secret string, userID uuid.UUID, ttl time.Duration) {
	v, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:   secret,
		Issuer:   os.Getenv("JWT_ISSUER"),
		Audience: os.Getenv("JWT_AUDIENCE"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		return
	}
	token, err := v.Issue(userID, ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		return
	}
	fmt.Println(token)
}
