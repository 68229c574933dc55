package postgresql

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"postpilot/internal/entity"
)

// IntegrationRepository reads platform connections. The integrations
// subsystem owns writes; credentials in the row are already decrypted by the
// time this layer sees them.
type IntegrationRepository struct {
	pool *pgxpool.Pool
}

func NewIntegrationRepository(pool *pgxpool.Pool) *IntegrationRepository {
	return &IntegrationRepository{pool: pool}
}

// Lookup returns the connection state for (user, platform). A missing row is
// reported as not connected, not as an error: disconnected is a normal state.
func (r *IntegrationRepository) Lookup(ctx context.Context, userID uuid.UUID, p entity.Platform) (*entity.Integration, error) {
	const q = `
SELECT user_id, platform, connected, credentials
FROM integrations
WHERE user_id = $1 AND platform = $2;`

	var in entity.Integration
	err := r.pool.QueryRow(ctx, q, userID, p).Scan(&in.UserID, &in.Platform, &in.Connected, &in.Credentials)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &entity.Integration{UserID: userID, Platform: p, Connected: false}, nil
		}
		return nil, err
	}
	return &in, nil
}
