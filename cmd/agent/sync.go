package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncTimeout time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued reports once and exit",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 2*time.Minute, "give up after this long")
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
	defer cancel()

	c, err := newCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if !c.sync.CheckOnline(ctx) {
		return errors.New("backend is unreachable, queued reports were kept")
	}
	ran, err := c.sync.Fire(ctx)
	remaining, lenErr := c.queue.Len(ctx)
	if lenErr != nil {
		return errors.Join(err, lenErr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sync tags run: %v, reports still queued: %d\n", ran, remaining)
	return err
}
