package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/control"
)

func newControlCmd(cfg *config.Config) *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "control [start|stop|test]",
		Short: "send a capture control command to a running avrecord process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c control.Command
			switch args[0] {
			case "start":
				c = control.CmdStartCapture
			case "stop":
				c = control.CmdStopCapture
			case "test":
				c = control.CmdTestCapture
			default:
				return fmt.Errorf("unknown command %q (want start, stop, or test)", args[0])
			}
			return os.WriteFile(filePath, []byte(c), 0644)
		},
	}

	cmd.Flags().StringVar(&filePath, "file", cfg.Control.FilePath, "control file path")
	return cmd
}
