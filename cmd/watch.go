package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"github.com/vayureader/vayu-cli/internal/adapters/catalog"
	statusadapter "github.com/vayureader/vayu-cli/internal/adapters/render/status"
	"github.com/vayureader/vayu-cli/internal/domain"
	"golang.org/x/sync/errgroup"
)

var errSessionEnded = errors.New("session ended")

type watchOptions struct {
	refresh   bool
	asJSON    bool
	maxEvents int
}

func newWatchCmd(app *app) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live document updates",
		Long:  "watch prints document events as they happen. It stops on Ctrl-C, after --max-events document events, or when the session ends.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), app, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "Re-fetch the document list after every change")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print one JSON object per event")
	cmd.Flags().IntVar(&opts.maxEvents, "max-events", 0, "Stop after this many document events (0 means no limit)")

	return cmd
}

func runWatch(ctx context.Context, stdout io.Writer, stderr io.Writer, app *app, opts watchOptions) error {
	app.currentSession(ctx)
	stdout = &lockedWriter{w: stdout}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	unsubscribe := app.session.Subscribe(func(s domain.Session) {
		if _, ok := s.State.(domain.Unauthenticated); ok {
			cancel(errSessionEnded)
		}
	})
	defer unsubscribe()

	var (
		mu        sync.Mutex
		delivered int
	)
	refreshes := make(chan struct{}, 1)

	sub, err := app.live.Subscribe(ctx, func(event domain.LiveEvent) {
		mu.Lock()
		defer mu.Unlock()

		if err := writeEvent(stdout, event, app, opts.asJSON); err != nil {
			app.log.Warn("watch.write_failed", "error", err)
		}
		if !event.Type.Mutation() {
			return
		}

		delivered++
		if opts.refresh {
			select {
			case refreshes <- struct{}{}:
			default:
			}
		}

		if opts.maxEvents > 0 && delivered >= opts.maxEvents && !opts.refresh {
			cancel(nil)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to live updates: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-groupCtx.Done()
		sub.Close()
		return nil
	})

	group.Go(func() error {
		select {
		case <-sub.Done():
			if err := sub.Err(); err != nil {
				return err
			}
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	if opts.refresh {
		group.Go(func() error {
			return refreshLoop(groupCtx, stdout, stderr, app, refreshes, opts.maxEvents, func() int {
				mu.Lock()
				defer mu.Unlock()
				return delivered
			}, cancel)
		})
	}

	err = group.Wait()
	if errors.Is(context.Cause(ctx), errSessionEnded) {
		_, _ = fmt.Fprintln(stderr, "Session ended; stopped watching.")
		return nil
	}
	return err
}

func refreshLoop(
	ctx context.Context,
	stdout io.Writer,
	stderr io.Writer,
	app *app,
	refreshes <-chan struct{},
	maxEvents int,
	delivered func() int,
	cancel context.CancelCauseFunc,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refreshes:
		}

		raw, err := app.catalog.ListPDFs(ctx, catalog.PDFQuery{})
		switch {
		case errors.Is(err, domain.ErrAuthorizationFailure):
			cancel(errSessionEnded)
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			_, _ = fmt.Fprintf(stderr, "refresh failed: %v\n", err)
		default:
			if err := writeJSON(stdout, raw); err != nil {
				return err
			}
		}

		if maxEvents > 0 && delivered() >= maxEvents {
			cancel(nil)
			return nil
		}
	}
}

func writeEvent(out io.Writer, event domain.LiveEvent, app *app, asJSON bool) error {
	at := app.now()
	if asJSON {
		data, err := statusadapter.EventJSON(event, at)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	_, err := fmt.Fprintln(out, statusadapter.EventLine(event, at))
	return err
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
