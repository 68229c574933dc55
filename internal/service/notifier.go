package service

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RunChannel is where intake nudges and the trigger loop listens.
const RunChannel = "postpilot:run"

// redisRunNotifier publishes a fire-and-forget "jobs are due now" nudge.
// Subscribers (see cmd) react by invoking a processing cycle; nobody waits
// for delivery.
type redisRunNotifier struct {
	rdb *redis.Client
}

func NewRedisRunNotifier(rdb *redis.Client) RunNotifier {
	return &redisRunNotifier{rdb: rdb}
}

func (n *redisRunNotifier) NotifyRunDue(ctx context.Context) error {
	return n.rdb.Publish(ctx, RunChannel, "due").Err()
}
