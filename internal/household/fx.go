package household

import (
	"github.com/smallbiznis/wealthdesk/internal/household/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("household.service",
	fx.Provide(repository.NewRepository),
)
