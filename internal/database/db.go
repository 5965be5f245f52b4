// Package database persists API key credentials and the request audit log
// in PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/edulms/api-gateway/internal/models"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	conn *sql.DB
}

// Connect opens and verifies the database connection.
func Connect(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("couldn't open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("database not responding: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn}, nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies connectivity, used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// LogRequest appends one audit record for a proxied request.
func (db *DB) LogRequest(ctx context.Context, log *models.RequestLog) error {
	query := `
		INSERT INTO request_logs (api_key_id, user_id, method, path, status_code, response_time_ms, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := db.conn.QueryRowContext(
		ctx,
		query,
		log.APIKeyID,
		log.UserID,
		log.Method,
		log.Path,
		log.StatusCode,
		log.ResponseTimeMs,
		log.IPAddress,
		log.UserAgent,
		time.Now(),
	).Scan(&log.ID)

	if err != nil {
		return fmt.Errorf("couldn't log request: %w", err)
	}
	return nil
}

// GetAPIKeyByKey looks up an active API key by its value. A missing key
// returns (nil, nil).
func (db *DB) GetAPIKeyByKey(ctx context.Context, key string) (*models.APIKey, error) {
	query := `
		SELECT id, key, name, rate_limit_per_minute, is_active, created_at
		FROM api_keys
		WHERE key = $1
	`

	apiKey := &models.APIKey{}
	err := db.conn.QueryRowContext(ctx, query, key).Scan(
		&apiKey.ID,
		&apiKey.Key,
		&apiKey.Name,
		&apiKey.RateLimitPerMinute,
		&apiKey.IsActive,
		&apiKey.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return apiKey, nil
}

// CreateAPIKey inserts a new API key and fills in its generated id.
func (db *DB) CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	query := `
		INSERT INTO api_keys (key, name, rate_limit_per_minute, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := db.conn.QueryRowContext(
		ctx,
		query,
		apiKey.Key,
		apiKey.Name,
		apiKey.RateLimitPerMinute,
		apiKey.IsActive,
		time.Now(),
	).Scan(&apiKey.ID)

	if err != nil {
		return fmt.Errorf("couldn't create API key: %w", err)
	}
	return nil
}

// ListAPIKeys returns all API keys, newest first.
func (db *DB) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	query := `
		SELECT id, key, name, rate_limit_per_minute, is_active, created_at
		FROM api_keys
		ORDER BY created_at DESC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("couldn't list API keys: %w", err)
	}
	defer rows.Close()

	var apiKeys []models.APIKey
	for rows.Next() {
		var apiKey models.APIKey
		err := rows.Scan(
			&apiKey.ID,
			&apiKey.Key,
			&apiKey.Name,
			&apiKey.RateLimitPerMinute,
			&apiKey.IsActive,
			&apiKey.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// DeleteAPIKey removes an API key by id.
func (db *DB) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("couldn't delete API key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("API key not found")
	}
	return nil
}

// ToggleAPIKey flips an API key's active flag.
func (db *DB) ToggleAPIKey(ctx context.Context, id uuid.UUID) error {
	result, err := db.conn.ExecContext(ctx, `UPDATE api_keys SET is_active = NOT is_active WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("couldn't toggle API key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("API key not found")
	}
	return nil
}
