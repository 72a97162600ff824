package account

import (
	"github.com/smallbiznis/wealthdesk/internal/account/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.NewRepository),
)
