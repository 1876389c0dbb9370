package journal

import (
	"context"
	"fmt"

	"dodo/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS placed_orders (
	id SERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	exchange VARCHAR(50) NOT NULL,
	pair VARCHAR(20) NOT NULL,
	side VARCHAR(4) NOT NULL,
	order_type VARCHAR(10) NOT NULL,
	rate NUMERIC(30, 8) NOT NULL,
	amount NUMERIC(30, 8) NOT NULL,
	order_id VARCHAR(100) NOT NULL,
	client_id VARCHAR(100) NOT NULL DEFAULT ''
);`

// PostgresRepository records placed orders in PostgreSQL.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// Connect opens a connection pool for dsn.
func Connect(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

// Migrate creates the journal table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// LogOrder inserts a placed order. Rates and amounts are stored as exact numerics.
func (r *PostgresRepository) LogOrder(ctx context.Context, entry model.JournalEntry) error {
	const insertSQL = `
	INSERT INTO placed_orders (timestamp, exchange, pair, side, order_type, rate, amount, order_id, client_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.Pool.Exec(ctx, insertSQL,
		entry.Timestamp,
		entry.Exchange,
		entry.Pair,
		entry.Side,
		entry.OrderType,
		entry.Rate.String(),
		entry.Amount.String(),
		entry.OrderID,
		entry.ClientID,
	)
	if err != nil {
		return fmt.Errorf("log order: %w", err)
	}
	return nil
}
