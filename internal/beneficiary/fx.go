package beneficiary

import (
	"github.com/smallbiznis/wealthdesk/internal/beneficiary/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("beneficiary.service",
	fx.Provide(repository.NewRepository),
)
