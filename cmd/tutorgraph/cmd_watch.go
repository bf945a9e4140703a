package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/spf13/cobra"

	"github.com/yungbote/tutorgraph-backend/internal/app"
	"github.com/yungbote/tutorgraph-backend/internal/realtime"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream graph change events published by other processes",
		Long: `Stream graph change events as JSON lines until interrupted.

Events cross process boundaries only through redis, so REDIS_ADDR must be set.`,
		Args: cobra.NoArgs,
		RunE: runWithApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
			if a.Clients.Redis == nil {
				return usageErr("watch requires REDIS_ADDR")
			}
			var mu sync.Mutex
			enc := json.NewEncoder(cmd.OutOrStdout())
			err := a.Clients.Bus.StartForwarder(ctx, func(ev realtime.GraphEvent) {
				mu.Lock()
				defer mu.Unlock()
				if err := enc.Encode(ev); err != nil {
					a.Log.Warn("write event failed", "error", err)
				}
			})
			if err != nil {
				return err
			}
			a.Log.Info("watching graph events")
			<-ctx.Done()
			return nil
		}),
	}
}
