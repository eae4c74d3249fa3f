//go:build wireinject

package main

import (
	"github.com/google/wire"

	"jan-server/services/query-tools/internal/domain"
	"jan-server/services/query-tools/internal/infrastructure"
	"jan-server/services/query-tools/internal/interfaces"
	"jan-server/services/query-tools/internal/interfaces/httpserver/routes"
)

func CreateApplication() (*Application, func(), error) {
	wire.Build(
		domain.DomainProvider,
		infrastructure.InfrastructureProvider,
		routes.RoutesProvider,
		interfaces.InterfacesProvider,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}

func CreateStdioApplication() (*StdioApplication, func(), error) {
	wire.Build(
		domain.DomainProvider,
		infrastructure.InfrastructureProvider,
		wire.Struct(new(StdioApplication), "*"),
	)
	return nil, nil, nil
}
