package importjob

import (
	"github.com/smallbiznis/wealthdesk/internal/importjob/progress"
	"github.com/smallbiznis/wealthdesk/internal/importjob/repository"
	"github.com/smallbiznis/wealthdesk/internal/importjob/service"
	"github.com/smallbiznis/wealthdesk/internal/importjob/undo"
	"go.uber.org/fx"
)

var Module = fx.Module("importjob.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(progress.NewHub),
	fx.Provide(service.NewHandlers),
	fx.Provide(service.NewService),
	fx.Provide(undo.NewLocker),
	fx.Provide(undo.NewRegistry),
	fx.Provide(undo.NewEngine),
	fx.Provide(undo.NewUndoService),
	fx.Provide(undo.NewSweeper),
	fx.Invoke(undo.RunSweeper),
)
