package cache

import "go.uber.org/fx"

var Module = fx.Module("cache",
	fx.Provide(NewPageCache),
	fx.Provide(func(pages *PageCache) Invalidator { return pages }),
)
