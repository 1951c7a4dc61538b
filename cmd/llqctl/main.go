// Command llqctl is an operator CLI for driving and observing llq demo
// processes: sending capture control commands and watching ring stats.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lowlatency/llq/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "llqctl",
	Short: "llqctl drives and observes llq demo queues",
}

func main() {
	cfg := config.DefaultConfig()

	rootCmd.AddCommand(newControlCmd(cfg))
	rootCmd.AddCommand(newWatchCmd(cfg))
	rootCmd.AddCommand(newStatusCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
