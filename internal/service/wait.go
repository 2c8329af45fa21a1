package service

import (
	"context"
	"time"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

// WaitPolicy bounds how long a request that lost the claim waits for the
// winner to record its resource.
type WaitPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Budget         time.Duration
}

func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     800 * time.Millisecond,
		Budget:         3 * time.Second,
	}
}

// WaitForExistingResource polls the attempt with exponential backoff until
// it is replayable. It returns nil, nil once the budget is spent.
func WaitForExistingResource(ctx context.Context, store AttemptStore, attemptID string, policy WaitPolicy) (*models.PaymentAttempt, error) {
	if policy.Budget <= 0 {
		return nil, nil
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = DefaultWaitPolicy().InitialBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}

	ctx, cancel := context.WithTimeout(ctx, policy.Budget)
	defer cancel()

	backoff := policy.InitialBackoff
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
		}

		attempt, err := store.GetAttempt(ctx, attemptID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, err
		}
		if attempt.Replayable() {
			return attempt, nil
		}

		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
		timer.Reset(backoff)
	}
}
