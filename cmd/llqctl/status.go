package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/monitor"
	"github.com/lowlatency/llq/internal/websocket"
)

type statusCollector struct {
	result chan []monitor.Snapshot
}

func (s statusCollector) HandleSnapshot(snapshots []monitor.Snapshot) {
	select {
	case s.result <- snapshots:
	default:
	}
}

func newStatusCmd(cfg *config.Config) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "print one occupancy snapshot from a monitor and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			statusCfg := cfg.Watch
			statusCfg.URL = url

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			collector := statusCollector{result: make(chan []monitor.Snapshot, 1)}
			client := websocket.NewClient(ctx, &statusCfg, collector)
			if err := client.Start(); err != nil {
				return err
			}
			defer client.Stop()

			select {
			case snapshots := <-collector.result:
				for _, s := range snapshots {
					fmt.Printf("%-10s size=%d/%d consumers=%d\n", s.Queue, s.Size, s.Capacity, s.Consumers)
				}
				return nil
			case <-ctx.Done():
				return fmt.Errorf("timed out waiting for a snapshot from %s", url)
			}
		},
	}

	cmd.Flags().StringVar(&url, "url", cfg.Watch.URL, "monitor websocket URL")
	return cmd
}
