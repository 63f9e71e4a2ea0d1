package loyalty

import (
	"github.com/zenbill/zenbill/internal/loyalty/repository"
	"github.com/zenbill/zenbill/internal/loyalty/service"
	"github.com/zenbill/zenbill/internal/loyalty/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("loyalty.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(worker.New),
	fx.Invoke(worker.Register),
)
