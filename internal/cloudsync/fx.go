package cloudsync

import (
	"github.com/smallbiznis/storeledger/internal/outbox"
	"go.uber.org/fx"
)

var Module = fx.Module("cloudsync",
	fx.Provide(NewGateway),
	fx.Provide(func(g *Gateway) outbox.Applier { return g }),
	fx.Provide(NewSyncer),
)
