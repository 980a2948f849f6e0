package outbox

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(NewService),
	fx.Provide(NewDispatcherConfig),
	fx.Provide(NewDispatcher),
	fx.Invoke(runDispatcher),
)

func runDispatcher(lc fx.Lifecycle, dispatcher *Dispatcher) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go dispatcher.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
