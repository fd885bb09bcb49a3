// Package identity resolves user ids to roles and activity flags. The default
// provider reads the local users projection; a remote gRPC provider against a
// dedicated identity service is available behind the protogen build tag.
package identity

import (
	"context"

	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
)

type Provider interface {
	GetProfile(ctx context.Context, id string) (model.User, error)
}

type PGProvider struct {
	users *storage.UserRepository
}

func NewPGProvider(users *storage.UserRepository) *PGProvider {
	return &PGProvider{users: users}
}

func (p *PGProvider) GetProfile(ctx context.Context, id string) (model.User, error) {
	return p.users.Get(ctx, id)
}
