package postgres

import (
	"context"
	"fmt"
)

// DeviceTokenRepository stores FCM device tokens for push notifications.
// It doubles as the firebase.TokenSource.
type DeviceTokenRepository struct {
	db *DB
}

func NewDeviceTokenRepository(db *DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// Register stores a device token, reactivating it if it was deactivated.
func (r *DeviceTokenRepository) Register(ctx context.Context, token string) error {
	query := `
		INSERT INTO device_tokens (token)
		VALUES ($1)
		ON CONFLICT (token)
		DO UPDATE SET active = TRUE, updated_at = CURRENT_TIMESTAMP
	`

	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

func (r *DeviceTokenRepository) ListActiveTokens(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT token FROM device_tokens WHERE active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}
	return tokens, nil
}

// Deactivate marks a token FCM reported as invalid or unregistered.
func (r *DeviceTokenRepository) Deactivate(ctx context.Context, token string) error {
	query := `UPDATE device_tokens SET active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE token = $1`

	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to deactivate device token: %w", err)
	}
	return nil
}
