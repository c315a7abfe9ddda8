package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/poller"
	"mapcap-ipo/internal/session"
	"mapcap-ipo/internal/tui"
)

func newWatchCmd() *cobra.Command {
	var (
		username string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a Pioneer's IPO statistics in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = cfg.PollInterval
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runWatch(ctx, domain.Identity{Username: username}, interval)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Pi username to watch")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (defaults to MAPCAP_POLL_INTERVAL)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func runWatch(ctx context.Context, identity domain.Identity, interval time.Duration) error {
	if identity.IsZero() {
		return domain.ErrNoIdentity
	}

	// Log lines would tear the alt screen; keep them for --verbose runs.
	quiet := zap.NewNop()
	if verbose {
		quiet = logger
	}

	store := session.New(newClient(quiet), session.Options{Logger: quiet})
	if err := store.SetIdentity(ctx, identity); err != nil {
		return err
	}
	poll := poller.New(store, identity, poller.Options{
		Interval: interval,
		Logger:   quiet,
	})

	var program *tea.Program
	refresh := func(ctx context.Context) error {
		if err := store.Refresh(ctx, ""); err != nil {
			return err
		}
		st := poll.State()
		st.Snapshot = store.Metrics()
		st.UpdatedAt = time.Now()
		program.Send(tui.StateMsg{State: st})
		return nil
	}

	program = tea.NewProgram(tui.New(identity, poll.State(), refresh),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
	)
	unsubscribe := poll.Subscribe(func(st poller.State) {
		program.Send(tui.StateMsg{State: st})
	})
	defer unsubscribe()

	poll.Start(ctx)
	defer func() {
		poll.Stop()
		poll.Wait()
	}()

	quiet.Debug("watching", zap.String("username", identity.Username), zap.Duration("interval", interval))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
