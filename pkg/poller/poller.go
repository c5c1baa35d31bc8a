// Package poller implements the getUpdates long-polling loop.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"

	"tgpoll/pkg/botapi"
	"tgpoll/pkg/checkpoint"
	"tgpoll/pkg/logger"
	"tgpoll/pkg/stream"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultGrace   = 5 * time.Second
)

// Executor performs one getUpdates round-trip. *botapi.Client satisfies it.
type Executor interface {
	GetUpdates(ctx context.Context, params *telego.GetUpdatesParams, timeout time.Duration) ([]telego.Update, error)
}

// BatchInfo describes one non-empty batch after the cursor moved.
type BatchInfo struct {
	Size     int
	Skipped  int
	Previous Cursor
	Cursor   Cursor
}

// Options configures a Poller. Zero values fall back to defaults.
type Options struct {
	// Timeout is the long-poll window requested from the server.
	Timeout time.Duration
	// Grace is added to Timeout for the client-side deadline of each call.
	Grace time.Duration
	// Limit caps the batch size; 0 leaves it to the server.
	Limit int
	// AllowedUpdates filters update kinds; empty leaves it to the server.
	AllowedUpdates []string

	// Checkpoint, when set, seeds the cursor on start and records every delivered
	// update under Key.
	Checkpoint checkpoint.Store
	Key        string

	// OnBatch is called from the polling goroutine after each cursor advance.
	OnBatch func(BatchInfo)

	Logger *slog.Logger
}

// Poller turns repeated getUpdates calls into an ordered stream of updates.
type Poller struct {
	exec Executor
	opts Options
	log  *slog.Logger
}

// New builds a poller around exec.
func New(exec Executor, opts Options) *Poller {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	opts.AllowedUpdates = botapi.NormalizeAllowedUpdates(opts.AllowedUpdates)

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Poller{
		exec: exec,
		opts: opts,
		log:  logger.Component(log, "poller"),
	}
}

// Updates returns a lazy stream of updates. Polling starts on the first pull and
// runs until a non-timeout error, ctx cancellation, or Close on the stream.
//
// Every Updates call starts an independent loop with its own cursor.
func (p *Poller) Updates(ctx context.Context) *stream.Stream[telego.Update] {
	return stream.New(ctx, p.run)
}

// CallTimeout is the client-side deadline used for each getUpdates call.
func (p *Poller) CallTimeout() time.Duration {
	return p.opts.Timeout + p.opts.Grace
}

func (p *Poller) run(ctx context.Context, yield func(telego.Update) bool) error {
	cursor, err := p.initialCursor(ctx)
	if err != nil {
		return err
	}

	p.log.Info("Polling started", "cursor", cursor.String(), "timeout", p.opts.Timeout, "allowed_updates", p.opts.AllowedUpdates)

	for {
		batch, err := p.exec.GetUpdates(ctx, p.request(cursor), p.CallTimeout())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				p.log.Info("Polling stopped", "cursor", cursor.String())
				return ctxErr
			}
			if botapi.IsTimeout(err) {
				p.log.Debug("Long poll window expired", "cursor", cursor.String())
				continue
			}

			p.log.Error("Polling failed", "cursor", cursor.String(), "kind", botapi.KindOf(err).String(), "error", err)
			return err
		}

		if len(batch) == 0 {
			continue
		}

		previous := cursor
		for _, update := range batch {
			cursor = cursor.Advance(update.UpdateID)
		}

		// delivered trails cursor and only moves once the consumer has an item,
		// so the checkpoint never covers an update nobody received.
		delivered := previous
		skipped := 0
		for _, update := range batch {
			if delivered.Covers(update.UpdateID) {
				skipped++
				continue
			}
			if !yield(update) {
				return ctx.Err()
			}
			delivered = delivered.Advance(update.UpdateID)
			p.saveCursor(ctx, delivered)
		}

		if skipped > 0 {
			p.log.Warn("Server returned already delivered updates", "count", skipped, "cursor", previous.String())
		}
		if p.opts.OnBatch != nil {
			p.opts.OnBatch(BatchInfo{Size: len(batch), Skipped: skipped, Previous: previous, Cursor: cursor})
		}
	}
}

func (p *Poller) request(cursor Cursor) *telego.GetUpdatesParams {
	return &telego.GetUpdatesParams{
		Offset:         cursor.Offset(),
		Limit:          p.opts.Limit,
		Timeout:        int(p.opts.Timeout / time.Second),
		AllowedUpdates: p.opts.AllowedUpdates,
	}
}

func (p *Poller) initialCursor(ctx context.Context) (Cursor, error) {
	if p.opts.Checkpoint == nil {
		return Cursor{}, nil
	}

	updateID, ok, err := p.opts.Checkpoint.Load(ctx, p.opts.Key)
	if err != nil {
		return Cursor{}, fmt.Errorf("load checkpoint %q: %w", p.opts.Key, err)
	}
	if !ok {
		return Cursor{}, nil
	}

	return CursorAt(updateID), nil
}

func (p *Poller) saveCursor(ctx context.Context, cursor Cursor) {
	if p.opts.Checkpoint == nil {
		return
	}

	updateID, _ := cursor.Value()
	// The consumer may close the stream right after taking the last item; the
	// save still has to land.
	if err := p.opts.Checkpoint.Save(context.WithoutCancel(ctx), p.opts.Key, updateID); err != nil {
		p.log.Warn("Failed to save checkpoint", "cursor", cursor.String(), "error", err)
	}
}
