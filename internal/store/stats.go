// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes helper methods to retrieve collection counts for basic
// diagnostics without leaking MongoDB internals to callers.
type StatsProvider struct {
	users     countCollection
	recurring countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the provided users and
// recurring transactions collections.
func NewStatsProvider(users, recurring countCollection) *StatsProvider {
	return &StatsProvider{
		users:     users,
		recurring: recurring,
	}
}

// CountUsers returns the number of registered users.
func (p *StatsProvider) CountUsers(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}

// CountRecurringTransactions returns the number of stored recurring transfer
// intents.
func (p *StatsProvider) CountRecurringTransactions(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.recurring == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.recurring.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count recurring transactions: %w", err)
	}

	return count, nil
}
