// Package processor runs a message codec over batches and streams of
// messages with bounded concurrency.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mkadit/isopack"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Processor shares one codec between worker goroutines. Codecs are safe for
// concurrent use, messages are not: each message belongs to one worker at a
// time.
type Processor struct {
	codec        isopack.MessageCodec
	name         string
	concurrency  int
	errorHandler func(index int, err error)
	logger       *slog.Logger
	registerer   prometheus.Registerer
	metrics      *processorMetrics
}

// Option defines a function signature for configuring a Processor.
type Option func(*Processor)

// WithConcurrency sets the maximum number of concurrent codec calls.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		p.concurrency = n
	}
}

// WithErrorHandler is called for every message that fails. index is the
// position in the batch, or the arrival order for streams.
func WithErrorHandler(handler func(index int, err error)) Option {
	return func(p *Processor) {
		p.errorHandler = handler
	}
}

// WithLogger sets the logger. A nil logger discards.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithRegisterer registers the processor metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Processor) {
		p.registerer = reg
	}
}

// WithName sets the processor const label on every metric.
func WithName(name string) Option {
	return func(p *Processor) {
		p.name = name
	}
}

// New creates a Processor over codec.
func New(codec isopack.MessageCodec, opts ...Option) (*Processor, error) {
	if codec == nil {
		return nil, fmt.Errorf("%w: processor needs a codec", isopack.ErrConfiguration)
	}
	p := &Processor{
		codec:       codec,
		name:        "default",
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		return nil, fmt.Errorf("%w: concurrency %d", isopack.ErrConfiguration, p.concurrency)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p.metrics = newProcessorMetrics(p.name)
	if p.registerer != nil {
		if err := p.metrics.register(p.registerer); err != nil {
			return nil, fmt.Errorf("failed to register processor metrics: %w", err)
		}
	}
	return p, nil
}

// Unpack decodes one message.
func (p *Processor) Unpack(data []byte) (*isopack.Message, error) {
	start := time.Now()
	m, n, err := p.codec.Unpack(data)
	p.metrics.observe(opUnpack, start, n, err)
	return m, err
}

// Pack encodes one message.
func (p *Processor) Pack(m *isopack.Message) ([]byte, error) {
	start := time.Now()
	b, err := p.codec.Pack(m)
	p.metrics.observe(opPack, start, len(b), err)
	return b, err
}

func (p *Processor) fail(op string, index int, err error) error {
	err = fmt.Errorf("message %d: %w", index, err)
	p.logger.Warn("codec call failed", "operation", op, "index", index, "error", err)
	if p.errorHandler != nil {
		p.errorHandler(index, err)
	}
	return err
}

// UnpackBatch decodes every element of data. Results keep the input order;
// a failed element leaves a nil message and contributes to the joined
// error. Cancelling ctx stops scheduling and returns ctx.Err().
func (p *Processor) UnpackBatch(ctx context.Context, data [][]byte) ([]*isopack.Message, error) {
	results := make([]*isopack.Message, len(data))
	errs := make([]error, len(data))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range data {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := p.Unpack(data[i])
			if err != nil {
				errs[i] = p.fail(opUnpack, i, err)
				return nil
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	p.logger.Debug("unpacked batch", "size", len(data))
	return results, errors.Join(errs...)
}

// PackBatch encodes every message, with the same ordering and error rules
// as UnpackBatch.
func (p *Processor) PackBatch(ctx context.Context, msgs []*isopack.Message) ([][]byte, error) {
	results := make([][]byte, len(msgs))
	errs := make([]error, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range msgs {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := p.Pack(msgs[i])
			if err != nil {
				errs[i] = p.fail(opPack, i, err)
				return nil
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	p.logger.Debug("packed batch", "size", len(msgs))
	return results, errors.Join(errs...)
}

// UnpackStream decodes messages from in and sends them to out until in is
// closed or ctx is done. Output order is not guaranteed. Failed messages
// go to the error handler and are dropped. out is not closed.
func (p *Processor) UnpackStream(ctx context.Context, in <-chan []byte, out chan<- *isopack.Message) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	index := 0
loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case data, ok := <-in:
			if !ok {
				break loop
			}
			i := index
			index++
			g.Go(func() error {
				m, err := p.Unpack(data)
				if err != nil {
					p.fail(opUnpack, i, err)
					return nil
				}
				select {
				case out <- m:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
