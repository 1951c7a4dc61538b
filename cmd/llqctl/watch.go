package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/monitor"
	"github.com/lowlatency/llq/internal/websocket"
)

type watchPrinter struct{}

func (watchPrinter) HandleSnapshot(snapshots []monitor.Snapshot) {
	for _, s := range snapshots {
		log.Printf("%-10s size=%d/%d consumers=%d", s.Queue, s.Size, s.Capacity, s.Consumers)
	}
}

func newWatchCmd(cfg *config.Config) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "stream ring occupancy from a monitor's /ws/stats endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			watchCfg := cfg.Watch
			watchCfg.URL = url

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client := websocket.NewClient(ctx, &watchCfg, watchPrinter{})
			if err := client.Start(); err != nil {
				return err
			}
			defer client.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", cfg.Watch.URL, "monitor websocket URL")
	return cmd
}
