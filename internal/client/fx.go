package client

import (
	"github.com/smallbiznis/wealthdesk/internal/client/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("client.service",
	fx.Provide(repository.NewRepository),
)
