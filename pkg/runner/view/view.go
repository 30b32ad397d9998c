// Package view drives a live view-model for a console command: mount,
// render the current page, and optionally keep re-rendering as the backend
// changes.
package view

import (
	"context"
	"errors"

	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

// Runner shows one live view.
type Runner[T record.Record] struct {
	Live  *viewmodel.Live[T]
	Query store.Query
	// Watch keeps rendering on every snapshot until the context ends.
	Watch bool
	// Prepare runs once the first snapshot has landed and before the first
	// render, for filters that depend on loaded data.
	Prepare func(s *viewmodel.Store[T]) error
	// Render draws the current page. An error ends Do.
	Render func(s *viewmodel.Store[T]) error
}

// Do mounts the view and renders it. The subscription is always cancelled
// before Do returns.
func (r *Runner[T]) Do(ctx context.Context) error {
	if r.Live == nil || r.Render == nil {
		return errors.New("view runner requires a live view and a renderer")
	}

	updates := make(chan struct{}, 1)
	r.Live.OnSnapshot = func(uint64, []T) {
		select {
		case updates <- struct{}{}:
		default:
		}
	}
	failures := make(chan error, 1)
	r.Live.OnError = func(err error) {
		select {
		case failures <- err:
		default:
		}
	}
	if err := r.Live.Mount(ctx, r.Query); err != nil {
		return err
	}
	defer r.Live.Unmount()

	// Nothing is rendered until the view has loaded once.
	select {
	case <-updates:
	case err := <-failures:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	if r.Prepare != nil {
		if err := r.Prepare(r.Live.Store); err != nil {
			return err
		}
	}
	if err := r.Render(r.Live.Store); err != nil {
		return err
	}
	if !r.Watch {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-failures:
			// Already logged by the view; keep showing the last good page.
		case <-updates:
			if _, mounted := r.Live.Mounted(); !mounted {
				return nil
			}
			if err := r.Render(r.Live.Store); err != nil {
				return err
			}
		}
	}
}
