package workflow

import (
	"context"

	"github.com/santaihub/santai-server/services/workflow-service/internal/apperr"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
	"github.com/santaihub/santai-server/services/workflow-service/internal/storage"
)

func (e *Engine) CreateClient(ctx context.Context, c model.Client) (model.Client, error) {
	id, err := e.catalog.CreateClient(ctx, &c)
	if err != nil {
		return model.Client{}, apperr.System(err)
	}
	created, err := e.catalog.GetClient(ctx, id)
	if err != nil {
		return model.Client{}, apperr.System(err)
	}
	return created, nil
}

func (e *Engine) ListClients(ctx context.Context) ([]model.Client, error) {
	clients, err := e.catalog.ListClients(ctx, 0)
	if err != nil {
		return nil, apperr.System(err)
	}
	return clients, nil
}

func (e *Engine) CreateService(ctx context.Context, s model.Service) (model.Service, error) {
	id, err := e.catalog.CreateService(ctx, &s)
	if err != nil {
		return model.Service{}, apperr.System(err)
	}
	created, err := e.catalog.GetService(ctx, id)
	if err != nil {
		return model.Service{}, apperr.System(err)
	}
	return created, nil
}

func (e *Engine) ListServices(ctx context.Context) ([]model.Service, error) {
	services, err := e.catalog.ListServices(ctx)
	if err != nil {
		return nil, apperr.System(err)
	}
	return services, nil
}

func (e *Engine) GetService(ctx context.Context, id string) (model.Service, error) {
	s, err := e.catalog.GetService(ctx, id)
	if storage.IsNotFound(err) {
		return model.Service{}, apperr.NotFound("service_not_found", "service does not exist")
	}
	if err != nil {
		return model.Service{}, apperr.System(err)
	}
	return s, nil
}
