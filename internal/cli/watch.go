package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkarpov/codesentry/internal/alert"
)

var (
	watchInterval time.Duration
	watchPaths    []string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Poll interval (default from config)")
	watchCmd.Flags().StringSliceVar(&watchPaths, "path", nil, "Directories to watch for immediate rechecks (default from config)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the integrity monitor in the foreground",
	Long: "Starts the background integrity monitor and prints every detected\n" +
		"change and runtime error until interrupted.",
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	g, cfg, err := openGuardian(ctx)
	if err != nil {
		return err
	}
	defer g.Close()

	interval := watchInterval
	if interval == 0 {
		interval = cfg.Monitor.Interval()
	}
	paths := watchPaths
	if len(paths) == 0 {
		paths = cfg.Monitor.WatchPaths
	}

	if err := g.StartMonitoring(interval, paths, cfg.Tracer.Modules); err != nil {
		return err
	}
	defer g.StopMonitoring()

	fmt.Fprintf(os.Stderr, "codesentry watching (interval %s)\n", interval)

	dispatcher := alert.NewDispatcher(cfg.Alerts)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case rec := <-g.Notifications():
			fmt.Printf("[%s] CHANGED %s in %s (%s -> %s)\n",
				rec.Time.Format(time.RFC3339), rec.Name, rec.FilePath,
				short(rec.OldDigest), short(rec.NewDigest))
			if dispatcher != nil {
				dispatcher.Dispatch(alert.AlertEvent{
					Timestamp: rec.Time.UTC().Format(time.RFC3339),
					Type:      alert.EventChange,
					File:      rec.FilePath,
					Entity:    rec.Name,
					OldDigest: rec.OldDigest,
					NewDigest: rec.NewDigest,
				})
			}
		case rec := <-g.ErrorNotifications():
			fmt.Printf("[%s] ERROR %s: %s: %s\n",
				rec.Time.Format(time.RFC3339), rec.Function, rec.Kind, rec.Message)
			if dispatcher != nil {
				dispatcher.Dispatch(alert.AlertEvent{
					Timestamp: rec.Time.UTC().Format(time.RFC3339),
					Type:      alert.EventError,
					Entity:    rec.Function,
					Message:   rec.Message,
				})
			}
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nstopping")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
