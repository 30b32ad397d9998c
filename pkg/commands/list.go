package commands

import (
	"context"

	"tableflip.dev/shopdesk/pkg/commands/options"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/runner/view"
	"tableflip.dev/shopdesk/pkg/store"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

// listing renders one live view with the list flags applied.
type listing[T record.Record] struct {
	c        *console
	query    store.Query
	decode   record.Decoder[T]
	opts     *options.ListOptions
	category string
	render   func(viewmodel.Page[T])
	// prepare runs after the filters are set.
	prepare func(*viewmodel.Store[T]) error
	// quiet skips rendering.
	quiet bool
}

func (l *listing[T]) live() *viewmodel.Live[T] {
	live := viewmodel.NewLive[T](l.c.docs, l.c.session, l.decode)
	live.Log = l.c.log
	live.Metrics = l.c.metrics
	return live
}

func (l *listing[T]) Do(ctx context.Context) error {
	order, err := l.opts.SortOrder()
	if err != nil {
		return err
	}
	watch := l.opts.Watch && !l.c.json
	redraws := 0

	r := &view.Runner[T]{
		Live:  l.live(),
		Query: l.query,
		Watch: watch,
		Prepare: func(s *viewmodel.Store[T]) error {
			s.SetCategory(l.category)
			s.SetSearch(l.opts.Search)
			s.SetSort(order)
			s.SetPage(l.opts.Page)
			l.c.pp.Selected = s.IsSelected
			if l.prepare != nil {
				return l.prepare(s)
			}
			return nil
		},
		Render: func(s *viewmodel.Store[T]) error {
			if l.quiet {
				return nil
			}
			page := s.View()
			if l.c.json {
				return l.c.printJSON(page)
			}
			if redraws > 0 {
				l.c.pp.NewLine()
			}
			redraws++
			l.render(page)
			return nil
		},
	}
	return r.Do(ctx)
}
