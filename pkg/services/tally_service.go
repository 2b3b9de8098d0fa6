// Package services holds the tally pipeline that drives a mail session and
// feeds the aggregator.
package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/headers"
	"aaronromeo.com/mailtally/pkg/models/imapmanager"
	"aaronromeo.com/mailtally/pkg/models/stats"
	"aaronromeo.com/mailtally/pkg/utils"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TallyService walks the tracked keys and folds matching message headers into
// an aggregator.
type TallyService interface {
	Run(ctx context.Context, agg stats.Aggregator, keys []string) *RunSummary
}

type TallyServiceImpl struct {
	session     imapmanager.Session
	logger      *slog.Logger
	mailbox     string
	batchSize   int
	maxMessages int
	tracer      trace.Tracer

	observed metric.Int64Counter
	undated  metric.Int64Counter
	failed   metric.Int64Counter
}

type TallyOption func(*TallyServiceImpl) error

func NewTallyService(session imapmanager.Session, logger *slog.Logger, opts ...TallyOption) (*TallyServiceImpl, error) {
	if session == nil {
		return nil, errors.New("requires session")
	}
	if logger == nil {
		return nil, errors.New("requires slogger")
	}

	srv := &TallyServiceImpl{
		session:     session,
		logger:      logger,
		mailbox:     base.DefaultMailbox,
		batchSize:   base.DefaultBatchSize,
		maxMessages: base.DefaultMaxMessages,
		tracer:      otel.Tracer(base.SERVICE_NAME),
	}
	for _, opt := range opts {
		if err := opt(srv); err != nil {
			return nil, err
		}
	}

	if srv.observed == nil {
		if err := WithMeter(otel.Meter(base.SERVICE_NAME))(srv); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

func WithMailbox(name string) TallyOption {
	return func(srv *TallyServiceImpl) error {
		if name == "" {
			return errors.New("mailbox is required")
		}
		srv.mailbox = name
		return nil
	}
}

// WithBatchSize bounds the number of messages per header fetch.
func WithBatchSize(size int) TallyOption {
	return func(srv *TallyServiceImpl) error {
		if size < 1 || size > base.MaxBatchSize {
			return errors.Errorf("batch size must be between 1 and %d, got %d", base.MaxBatchSize, size)
		}
		srv.batchSize = size
		return nil
	}
}

// WithMaxMessages limits each key to its newest n matches. Zero disables the
// limit.
func WithMaxMessages(n int) TallyOption {
	return func(srv *TallyServiceImpl) error {
		if n < 0 {
			return errors.Errorf("max messages cannot be negative, got %d", n)
		}
		srv.maxMessages = n
		return nil
	}
}

func WithTracer(tracer trace.Tracer) TallyOption {
	return func(srv *TallyServiceImpl) error {
		srv.tracer = tracer
		return nil
	}
}

func WithMeter(meter metric.Meter) TallyOption {
	return func(srv *TallyServiceImpl) error {
		var err error
		srv.observed, err = meter.Int64Counter("mailtally.messages.observed",
			metric.WithDescription("Messages folded into the aggregator"))
		if err != nil {
			return errors.Wrap(err, "creating observed counter")
		}
		srv.undated, err = meter.Int64Counter("mailtally.messages.undated",
			metric.WithDescription("Messages counted without a usable Date header"))
		if err != nil {
			return errors.Wrap(err, "creating undated counter")
		}
		srv.failed, err = meter.Int64Counter("mailtally.batches.failed",
			metric.WithDescription("Header fetches that failed"))
		if err != nil {
			return errors.Wrap(err, "creating failed batch counter")
		}
		return nil
	}
}

// Run processes keys one after another. Failures are recorded in the summary
// and never stop the run; the caller decides what to do with them.
func (srv *TallyServiceImpl) Run(ctx context.Context, agg stats.Aggregator, keys []string) *RunSummary {
	summary := &RunSummary{Mode: agg.Mode()}
	for _, key := range keys {
		summary.addKey(srv.runKey(ctx, agg, key))
	}

	srv.logger.InfoContext(ctx, "Tally finished",
		slog.Int("keys", len(keys)),
		slog.Int("observed", summary.Observed()),
		slog.Int("failed_batches", summary.FailedBatches()),
	)
	return summary
}

func (srv *TallyServiceImpl) runKey(ctx context.Context, agg stats.Aggregator, key string) KeyResult {
	ctx, span := srv.tracer.Start(ctx, "tally.key", trace.WithAttributes(
		attribute.String("key", key),
		attribute.String("mode", string(agg.Mode())),
	))
	defer span.End()

	result := KeyResult{Key: key}
	fail := func(err error) KeyResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		srv.logger.ErrorContext(ctx, fmt.Sprintf("Skipping %s", key), slog.Any("error", utils.WrapError(err)))
		result.Err = err
		return result
	}

	srv.logger.InfoContext(ctx, "Searching for emails", slog.String("key", key))

	if err := srv.session.SelectMailbox(srv.mailbox); err != nil {
		return fail(err)
	}

	ids, err := srv.session.Search(agg.Mode(), key)
	if err != nil {
		return fail(err)
	}
	result.Found = len(ids)
	if len(ids) == 0 {
		srv.logger.InfoContext(ctx, "No emails found", slog.String("key", key))
		return result
	}

	ids = imapmanager.MostRecent(ids, srv.maxMessages)
	srv.logger.InfoContext(ctx, "Processing emails in batches",
		slog.String("key", key),
		slog.Int("found", result.Found),
		slog.Int("processing", len(ids)),
		slog.Int("batch_size", srv.batchSize),
	)

	for _, batch := range imapmanager.Batches(ids, srv.batchSize) {
		br := srv.runBatch(ctx, agg, key, batch)
		result.Batches = append(result.Batches, br)
		result.Processed += br.Observed
	}
	span.SetAttributes(attribute.Int("observed", result.Processed))
	return result
}

func (srv *TallyServiceImpl) runBatch(ctx context.Context, agg stats.Aggregator, key string, batch []uint32) BatchResult {
	ctx, span := srv.tracer.Start(ctx, "tally.batch", trace.WithAttributes(
		attribute.String("key", key),
		attribute.Int64("first", int64(batch[0])),
		attribute.Int("size", len(batch)),
	))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("mode", string(agg.Mode())))
	result := BatchResult{Key: key, FirstSeqNum: batch[0], Size: len(batch)}

	raws, err := srv.session.FetchHeaders(batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		srv.failed.Add(ctx, 1, attrs)
		srv.logger.ErrorContext(ctx, fmt.Sprintf("Failed to fetch batch starting with ID %d", batch[0]), slog.Any("error", utils.WrapError(err)))
		result.Err = err
		return result
	}
	result.Fetched = len(raws)

	for _, raw := range raws {
		fields, err := headers.Parse(bytes.NewReader(raw.Block))
		if err != nil {
			result.Unparsed++
			srv.logger.ErrorContext(ctx, "Failed to parse header block", slog.Any("seqNum", raw.SeqNum), slog.Any("error", utils.WrapError(err)))
			continue
		}

		msg, err := headers.ToMessage(fields)
		if err != nil {
			result.WithoutDate++
			srv.undated.Add(ctx, 1, attrs)
			srv.logger.DebugContext(ctx, "Counting message without date", slog.Any("seqNum", raw.SeqNum), slog.Any("error", err))
		}

		agg.Observe(key, msg)
		result.Observed++
	}
	srv.observed.Add(ctx, int64(result.Observed), attrs)
	return result
}
