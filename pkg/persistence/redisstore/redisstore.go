// Package redisstore provides Redis-backed implementations of the step
// ledger and the last-known node status store. Both are keyed per run and
// expire, so Redis suits deployments where runs are short-lived and the
// durable system of record lives elsewhere.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/loomhq/loom/pkg/models"
)

const (
	stepKeyPrefix   = "loom:steps:"
	statusKeyPrefix = "loom:status:"

	// Runs retry within minutes; a generous TTL keeps ledgers and status
	// around for inspection without growing unbounded.
	stepTTL   = 7 * 24 * time.Hour
	statusTTL = 24 * time.Hour
)

// NewClient connects to Redis at the given URL (redis://host:port/db).
func NewClient(ctx context.Context, url string) (redis.UniversalClient, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// StepLedger stores completed step results in one hash per run.
type StepLedger struct {
	client redis.UniversalClient
}

func NewStepLedger(client redis.UniversalClient) *StepLedger {
	return &StepLedger{client: client}
}

func (l *StepLedger) GetStepResult(ctx context.Context, runID, stepName string) ([]byte, bool, error) {
	result, err := l.client.HGet(ctx, stepKeyPrefix+runID, stepName).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read step %s of run %s: %w", stepName, runID, err)
	}

	return result, true, nil
}

func (l *StepLedger) PutStepResult(ctx context.Context, runID, stepName string, result []byte) error {
	key := stepKeyPrefix + runID

	// First write wins: a step already recorded must keep its result so
	// replays stay stable.
	if err := l.client.HSetNX(ctx, key, stepName, result).Err(); err != nil {
		return fmt.Errorf("failed to record step %s of run %s: %w", stepName, runID, err)
	}

	if err := l.client.Expire(ctx, key, stepTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh ledger ttl of run %s: %w", runID, err)
	}

	return nil
}

// LastKnownStore keeps the most recent node status per execution in one hash
// per execution, so observers can poll current state after missing frames.
type LastKnownStore struct {
	client redis.UniversalClient
}

func NewLastKnownStore(client redis.UniversalClient) *LastKnownStore {
	return &LastKnownStore{client: client}
}

func (s *LastKnownStore) SetNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus) error {
	key := statusKeyPrefix + executionID

	if err := s.client.HSet(ctx, key, nodeID, string(status)).Err(); err != nil {
		return fmt.Errorf("failed to store status of node %s: %w", nodeID, err)
	}

	if err := s.client.Expire(ctx, key, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh status ttl of execution %s: %w", executionID, err)
	}

	return nil
}

// GetNodeStatus returns the last stored status, or NodeStatusInitial when the
// node has not reported yet.
func (s *LastKnownStore) GetNodeStatus(ctx context.Context, executionID, nodeID string) (models.NodeStatus, error) {
	value, err := s.client.HGet(ctx, statusKeyPrefix+executionID, nodeID).Result()
	if errors.Is(err, redis.Nil) {
		return models.NodeStatusInitial, nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to read status of node %s: %w", nodeID, err)
	}

	return models.NodeStatus(value), nil
}
