package postgresql

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"postpilot/internal/entity"
)

// PostRepository mirrors job outcomes onto the parent posts table. The post
// lifecycle itself is owned by the post-management subsystem; the scheduler
// only writes status.
type PostRepository struct {
	pool *pgxpool.Pool
}

func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

// UpdateStatus is scoped by user_id even though the job already carries the
// owner; a job row corrupted with a foreign post id must not cross tenants.
func (r *PostRepository) UpdateStatus(ctx context.Context, postID, userID uuid.UUID, status entity.PostStatus, postedAt *time.Time) error {
	const q = `
UPDATE posts
SET status = $3, posted_at = $4, updated_at = now()
WHERE id = $1 AND user_id = $2;`

	tag, err := r.pool.Exec(ctx, q, postID, userID, status, postedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
