//go:build protogen

package identity

import (
	"context"
	"time"

	"github.com/santaihub/santai-server/libs/grpcx"
	identityv1 "github.com/santaihub/santai-server/protos/gen/identity/v1"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

type remoteProvider struct {
	client identityv1.IdentityServiceClient
}

// NewRemoteProvider dials the identity service. Returns a nil Provider when
// no address is configured; callers fall back to the local projection.
func NewRemoteProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &remoteProvider{client: identityv1.NewIdentityServiceClient(conn)}, nil
}

func (p *remoteProvider) GetProfile(ctx context.Context, id string) (model.User, error) {
	resp, err := p.client.GetUser(ctx, &identityv1.GetUserRequest{Id: id})
	if err != nil {
		return model.User{}, err
	}
	return model.User{
		ID:       resp.GetId(),
		FullName: resp.GetFullName(),
		Phone:    resp.GetPhone(),
		Role:     model.Role(resp.GetRole()),
		IsActive: resp.GetIsActive(),
	}, nil
}
