package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/watch"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-import a corpus directory whenever it changes",
		Long: `Import every corpus file in dir, then re-import files as they change,
flush the search cache and publish a corpus.reloaded event. Files matching
patterns in .supportignore are skipped.

A watcher is only useful to other processes when storage, cache and bus are
shared (sqlite, redis, kafka). With --detach the watcher keeps running in the
background; see 'watch list' and 'watch stop'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().Bool("foreground", false, "run in the foreground (used by detached watchers)")
	cmd.Flags().BoolP("detach", "d", false, "run in the background")

	cmd.AddCommand(watchListCmd(), watchStopCmd())
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	detach, _ := cmd.Flags().GetBool("detach")
	foreground, _ := cmd.Flags().GetBool("foreground")

	cfg, log, err := loadConfig(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	dir := cfg.Corpus.Path
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("no corpus directory: pass one or set corpus.path")
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}
	if configPath != "" {
		if configPath, err = filepath.Abs(configPath); err != nil {
			return err
		}
	}

	if detach && !foreground {
		pid, err := watch.StartDaemon(dir, configPath)
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s in the background (pid %d)\n", dir, pid)
		return nil
	}

	if cfg.Storage.Type == "memory" {
		log.Warn("Storage is in memory; reloads are only visible to this process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.WithError(err).Warn("Error closing services")
		}
	}()

	w, err := a.newWatcher(dir)
	if err != nil {
		return err
	}

	state := &watch.State{
		PID:        os.Getpid(),
		Dir:        w.Dir(),
		ConfigPath: configPath,
		StartedAt:  time.Now().UTC(),
	}
	if err := watch.SaveState(state); err != nil {
		log.WithError(err).Warn("Could not record watcher state")
	}
	defer func() { _ = watch.RemoveState(state.PID) }()

	go trackState(ctx, w, state, log)

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Watcher stopped", "dir", w.Dir())
	return nil
}

// trackState copies reload counters into the state file so 'watch list'
// can show them.
func trackState(ctx context.Context, w *watch.Watcher, state *watch.State, log *logger.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := w.Stats()
			if stats.Reloads == state.Reloads {
				continue
			}
			state.Reloads = stats.Reloads
			state.LastReload = stats.LastReload.UTC()
			if err := watch.SaveState(state); err != nil {
				log.WithError(err).Warn("Could not record watcher state")
			}
		}
	}
}

func watchListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List running watchers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			states, err := watch.ListStates()
			if err != nil {
				return err
			}
			if states == nil {
				states = []*watch.State{}
			}
			return printOutput(cmd, states, func(w io.Writer) {
				if len(states) == 0 {
					fmt.Fprintln(w, "No watchers running")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PID\tDIR\tSTARTED\tRELOADS")
				for _, s := range states {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", s.PID, s.Dir, s.StartedAt.Local().Format(time.DateTime), s.Reloads)
				}
				_ = tw.Flush()
			})
		},
	}
}

func watchStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop [pid]",
		Short: "Stop a running watcher, or all of them with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			out := cmd.OutOrStdout()

			if all {
				n, err := watch.StopAllDaemons()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Stopped %d watchers\n", n)
				return nil
			}

			if len(args) == 0 {
				return errors.New("pass a pid or --all")
			}
			pid, err := strconv.Atoi(args[0])
			if err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			if err := watch.StopDaemon(pid); err != nil {
				return err
			}
			fmt.Fprintf(out, "Stopped watcher %d\n", pid)
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "stop every watcher")
	return cmd
}
