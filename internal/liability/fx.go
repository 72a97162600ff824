package liability

import (
	"github.com/smallbiznis/wealthdesk/internal/liability/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("liability.service",
	fx.Provide(repository.NewRepository),
)
