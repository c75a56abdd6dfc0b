package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coloring-pages/internal/models"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

type PostgresConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnLifetime
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

const profileColumns = `id, email, full_name, credits, subscription_tier, stripe_customer_id,
        stripe_subscription_id, subscription_cancelling, subscription_end_date, created_at, updated_at`

func (db *PostgresDB) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return db.queryProfile(ctx, query, id)
}

func (db *PostgresDB) FindByCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE stripe_customer_id = $1 LIMIT 1`
	return db.queryProfile(ctx, query, customerID)
}

func (db *PostgresDB) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE lower(email) = lower($1) LIMIT 1`
	return db.queryProfile(ctx, query, strings.TrimSpace(email))
}

func (db *PostgresDB) queryProfile(ctx context.Context, query string, arg string) (*models.Profile, error) {
	var (
		p              models.Profile
		tier           string
		customerID     *string
		subscriptionID *string
		endDate        *time.Time
	)
	err := db.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.Email, &p.FullName, &p.Credits, &tier, &customerID,
		&subscriptionID, &p.SubscriptionCancelling, &endDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	p.SubscriptionTier = models.SubscriptionTier(tier)
	if customerID != nil {
		p.StripeCustomerID = *customerID
	}
	if subscriptionID != nil {
		p.StripeSubscriptionID = *subscriptionID
	}
	p.SubscriptionEndDate = endDate
	return &p, nil
}

func (db *PostgresDB) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.SubscriptionTier == "" {
		p.SubscriptionTier = models.TierFree
	}
	query := `
        INSERT INTO profiles (id, email, full_name, credits, subscription_tier)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at
    `
	err := db.pool.QueryRow(ctx, query,
		p.ID, p.Email, p.FullName, p.Credits, string(p.SubscriptionTier),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// ApplyCreditGrant records the idempotency key and increments the balance in
// one transaction. A missing profile rolls the ledger entry back.
func (db *PostgresDB) ApplyCreditGrant(ctx context.Context, grant models.CreditGrant) (int, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if grant.IdempotencyKey != "" {
		tag, err := tx.Exec(ctx, `
            INSERT INTO processed_events (idempotency_key, source, user_id, credits)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (idempotency_key) DO NOTHING
        `, grant.IdempotencyKey, grant.Source, grant.UserID, grant.Credits)
		if err != nil {
			return 0, fmt.Errorf("failed to record event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return 0, ErrAlreadyProcessed
		}
	}

	query := `
        UPDATE profiles
        SET credits = credits + $2,
            subscription_tier = COALESCE(NULLIF($3::text, ''), subscription_tier),
            stripe_customer_id = COALESCE(stripe_customer_id, NULLIF($4::text, '')),
            stripe_subscription_id = COALESCE(NULLIF($5::text, ''), stripe_subscription_id),
            subscription_cancelling = CASE WHEN $5::text <> '' THEN FALSE ELSE subscription_cancelling END,
            subscription_end_date = CASE WHEN $5::text <> '' THEN NULL ELSE subscription_end_date END,
            updated_at = NOW()
        WHERE id = $1
        RETURNING credits
    `
	var credits int
	err = tx.QueryRow(ctx, query,
		grant.UserID, grant.Credits, string(grant.Tier), grant.CustomerID, grant.SubscriptionID,
	).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to apply credits: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit credit grant: %w", err)
	}
	return credits, nil
}

func (db *PostgresDB) MarkSubscriptionCancelling(ctx context.Context, userID string, endsAt time.Time) error {
	query := `
        UPDATE profiles
        SET subscription_cancelling = TRUE, subscription_end_date = $2, updated_at = NOW()
        WHERE id = $1
    `
	tag, err := db.pool.Exec(ctx, query, userID, endsAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark subscription cancelling: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
