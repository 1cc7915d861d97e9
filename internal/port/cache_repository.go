package port

import "context"

type CacheRepository interface {
	// SetIdempotency claims a key, returns false if already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a claim so the operation can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
