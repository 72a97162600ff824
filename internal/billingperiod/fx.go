package billingperiod

import (
	"github.com/smallbiznis/wealthdesk/internal/billingperiod/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("billingperiod.service",
	fx.Provide(repository.NewRepository),
)
