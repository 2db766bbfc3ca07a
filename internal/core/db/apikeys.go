package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertAPIKey stores a new key hash for clientID and returns its api_key_id.
func (q *Queries) InsertAPIKey(ctx context.Context, clientID string, keyHash []byte) (string, error) {
	id := uuid.New().String()
	if _, err := q.ExecContext(ctx, "insert-api-key", id, clientID, keyHash, time.Now()); err != nil {
		return "", fmt.Errorf("failed to insert api key: %w", err)
	}
	return id, nil
}

// RevokeAPIKey marks a key revoked. Returns false when the key does not
// exist or was already revoked.
func (q *Queries) RevokeAPIKey(ctx context.Context, apiKeyID string) (bool, error) {
	res, err := q.ExecContext(ctx, "revoke-api-key", time.Now(), apiKeyID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to revoke api key: %w", err)
	}
	return n == 1, nil
}
