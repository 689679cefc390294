package bot

import (
	"context"
	"errors"
	"fmt"

	"slack_pay_bridge_bot/internal/domain"
	"slack_pay_bridge_bot/internal/synapse"
)

// ErrNotRegistered reports that no local row maps the chat user to a
// payments-provider user. Callers answer with a registration prompt.
var ErrNotRegistered = errors.New("user is not registered")

type registeredUserGetter interface {
	GetByChatUserID(ctx context.Context, chatUserID string) (domain.RegisteredUser, error)
}

type remoteUserGetter interface {
	GetUser(ctx context.Context, userID string) (*synapse.User, error)
}

// Account pairs the local registration row with the live provider user it
// points at.
type Account struct {
	Row    domain.RegisteredUser
	Remote *synapse.User
}

// Resolver maps a chat user id to an Account: local row lookup first, then a
// live fetch of the remote user.
type Resolver struct {
	users    registeredUserGetter
	provider remoteUserGetter
}

func NewResolver(users registeredUserGetter, provider remoteUserGetter) *Resolver {
	return &Resolver{users: users, provider: provider}
}

func (r *Resolver) Resolve(ctx context.Context, chatUserID string) (Account, error) {
	if r == nil || r.users == nil || r.provider == nil {
		return Account{}, errors.New("resolver is not initialized")
	}
	row, err := r.users.GetByChatUserID(ctx, chatUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Account{}, ErrNotRegistered
		}
		return Account{}, fmt.Errorf("look up registered user: %w", err)
	}
	remote, err := r.provider.GetUser(ctx, row.RemoteUserID)
	if err != nil {
		return Account{}, err
	}
	return Account{Row: row, Remote: remote}, nil
}
