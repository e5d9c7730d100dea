// Package tap extracts Twilio resources and writes them as Singer RECORD
// messages.
//
// A Tap is built from command line arguments, reads its configuration
// file, and creates one upstream client. Start walks every configured
// stream concurrently, merges the resulting message sequences and writes
// them to a sink:
//
//	t, err := tap.New(tap.Args{ConfigPath: "config.json"})
//	if err != nil {
//	    return err
//	}
//	return t.Start(ctx, sink.NewStdout())
//
// A Tap runs once. Start reports exactly one outcome: nil after every
// stream was exhausted and the sink closed, or the first failure.
package tap

import (
	"context"
	"io"
	"iter"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tap-twilio/pkg/clients"
	"github.com/ajitpratap0/tap-twilio/pkg/config"
	"github.com/ajitpratap0/tap-twilio/pkg/errors"
	"github.com/ajitpratap0/tap-twilio/pkg/logger"
	"github.com/ajitpratap0/tap-twilio/pkg/metrics"
	"github.com/ajitpratap0/tap-twilio/pkg/observability"
	"github.com/ajitpratap0/tap-twilio/pkg/singer"
	"github.com/ajitpratap0/tap-twilio/pkg/sink"
	"github.com/ajitpratap0/tap-twilio/pkg/stream"
	"github.com/ajitpratap0/tap-twilio/pkg/twilio"
)

// Args are the command line arguments the tap understands.
type Args struct {
	ConfigPath string
	Discovery  bool
}

// Client resolves catalog resources to page accessors.
type Client interface {
	Accessor(resource string) (stream.Accessor[twilio.Instance], error)
}

// ClientFactory creates the upstream client from the configured
// credentials.
type ClientFactory func(accountSID, authToken string, opts ...twilio.Option) (Client, error)

// NewTwilioClient is the default ClientFactory.
func NewTwilioClient(accountSID, authToken string, opts ...twilio.Option) (Client, error) {
	return twilio.NewClient(accountSID, authToken, opts...), nil
}

// Formatter turns one record into a message line without a trailing newline.
type Formatter func(stream string, record interface{}) (string, error)

// Option configures a Tap.
type Option func(*Tap)

// WithClientFactory replaces the upstream client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(t *Tap) {
		if f != nil {
			t.newClient = f
		}
	}
}

// WithLogger sets the tap logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tap) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics records into c instead of a private collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Tap) {
		if c != nil {
			t.metrics = c
		}
	}
}

// WithFormatter replaces the record formatter.
func WithFormatter(f Formatter) Option {
	return func(t *Tap) {
		if f != nil {
			t.format = f
		}
	}
}

// Tap is one extraction run.
type Tap struct {
	config    *config.Config
	client    Client
	http      *clients.HTTPClient
	newClient ClientFactory
	format    Formatter
	logger    *zap.Logger
	metrics   *metrics.Collector
	state     atomic.Int32
}

// New validates args, loads the configuration file and creates the
// upstream client. Checks run in a fixed order: discovery mode, missing
// config path, unreadable config, invalid config.
func New(args Args, opts ...Option) (*Tap, error) {
	if args.Discovery {
		return nil, errors.New(errors.ErrorTypeUnsupportedMode, "Discovery mode not supported")
	}
	if args.ConfigPath == "" {
		return nil, errors.New(errors.ErrorTypeUsage, "Usage: tap-twilio --config <config-file>")
	}

	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		return nil, err
	}

	return NewWithConfig(cfg, opts...)
}

// NewWithConfig creates a tap from an already loaded configuration. The
// configuration is validated with defaults applied; cfg itself is not
// modified.
func NewWithConfig(cfg *config.Config, opts ...Option) (*Tap, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeInvalidConfig, "configuration is required")
	}
	own := *cfg
	own.ApplyDefaults()
	if err := own.Validate(); err != nil {
		return nil, err
	}
	cfg = &own

	t := &Tap{
		config:    cfg,
		newClient: NewTwilioClient,
		format:    singer.FormatRecord,
		logger:    logger.Get(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = metrics.NewCollector()
	}
	t.logger = t.logger.With(zap.String("component", "tap"))

	httpConfig := clients.DefaultHTTPConfig()
	if cfg.RequestTimeout > 0 {
		httpConfig.RequestTimeout = cfg.RequestTimeout
	}

	t.http = clients.NewHTTPClient(httpConfig, t.logger)

	client, err := t.newClient(cfg.AccountSID, cfg.AuthToken,
		twilio.WithBaseURL(cfg.BaseURL),
		twilio.WithMessagingBaseURL(cfg.MessagingBaseURL),
		twilio.WithHTTPClient(t.http),
		twilio.WithLogger(t.logger),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create Twilio client")
	}
	t.client = client

	return t, nil
}

// Config returns the loaded configuration.
func (t *Tap) Config() *config.Config {
	return t.config
}

// Metrics returns the collector the tap records into.
func (t *Tap) Metrics() *metrics.Collector {
	return t.metrics
}

// State returns the current lifecycle state.
func (t *Tap) State() State {
	return State(t.state.Load())
}

// StreamMessages returns the message lines for every instance reachable
// from accessor, each terminated by a newline. Failures end the sequence
// exactly like stream.Instances.
func (t *Tap) StreamMessages(ctx context.Context, accessor stream.Accessor[twilio.Instance], streamName string) iter.Seq2[string, error] {
	instances := stream.Instances(ctx, accessor,
		stream.PageOptionsFromConfig(t.config.PageSize),
		stream.WithObserver(t.metrics.StreamObserver(streamName)))

	return stream.Map(instances, func(instance twilio.Instance) (string, error) {
		line, err := t.format(streamName, instance)
		if err != nil {
			return "", err
		}
		return line + "\n", nil
	})
}

// message is one line tagged with the stream it belongs to.
type message struct {
	stream string
	line   string
}

// Start extracts every configured stream into out and closes it. It
// returns nil only after all streams were exhausted and out was closed.
// out is closed on failure too, so output already written is kept.
func (t *Tap) Start(ctx context.Context, out sink.Sink) (err error) {
	if !t.state.CompareAndSwap(int32(StateIdle), int32(StateStreaming)) {
		return errors.Newf(errors.ErrorTypeInternal, "tap cannot start in state %s", t.State())
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "tap.start",
		attribute.Int("tap.streams", len(t.config.Streams)))
	defer func() {
		t.closeClient()
		observability.EndSpan(span, err)
		if err != nil {
			t.state.Store(int32(StateFailed))
			t.logger.Error("extraction failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}
		t.state.Store(int32(StateCompleted))
	}()

	sources := make([]func(context.Context) iter.Seq2[message, error], 0, len(t.config.Streams))
	for _, sc := range t.config.Streams {
		accessor, err := t.client.Accessor(sc.Resource)
		if err != nil {
			return t.closeAfter(out, err)
		}
		sources = append(sources, func(ctx context.Context) iter.Seq2[message, error] {
			return t.tagged(ctx, sc, accessor)
		})
	}

	emitted := make(map[string]int, len(sources))
	var runErr error
	for m, err := range stream.MergeFunc(ctx, sources...) {
		if err != nil {
			runErr = classify(err)
			break
		}
		if _, err := io.WriteString(out, m.line); err != nil {
			runErr = errors.Wrap(err, errors.ErrorTypeSink, "failed to write message").
				WithDetail("stream", m.stream)
			break
		}
		emitted[m.stream]++
		t.metrics.RecordEmitted(m.stream)
	}

	if err := t.closeAfter(out, runErr); err != nil {
		return err
	}

	stats := t.http.GetStats()
	fields := []zap.Field{
		zap.Duration("duration", time.Since(start)),
		zap.Int64("requests", stats.TotalRequests),
		zap.Int64("failed_requests", stats.FailedRequests),
	}
	for _, sc := range t.config.Streams {
		fields = append(fields, zap.Int(sc.Stream, emitted[sc.Stream]))
	}
	t.logger.Info("extraction completed", fields...)
	return nil
}

// tagged is the message sequence of one configured stream.
func (t *Tap) tagged(ctx context.Context, sc config.StreamConfig, accessor stream.Accessor[twilio.Instance]) iter.Seq2[message, error] {
	ctx = context.WithValue(ctx, logger.StreamKey, sc.Stream)
	ctx = context.WithValue(ctx, logger.ResourceKey, sc.Resource)
	log := logger.WithContext(ctx, t.logger)

	return func(yield func(message, error) bool) {
		log.Info("stream started")
		produced := 0
		for line, err := range t.StreamMessages(ctx, accessor, sc.Stream) {
			if err != nil {
				log.Warn("stream failed", zap.Int("records", produced), zap.Error(err))
				yield(message{}, err)
				return
			}
			produced++
			if !yield(message{stream: sc.Stream, line: line}, nil) {
				log.Debug("stream stopped", zap.Int("records", produced))
				return
			}
		}
		log.Info("stream completed", zap.Int("records", produced))
	}
}

// closeAfter closes out and returns cause, or the close failure when the
// run itself succeeded.
func (t *Tap) closeAfter(out sink.Sink, cause error) error {
	if err := out.Close(); err != nil {
		if cause != nil {
			t.logger.Warn("failed to close sink after failure", zap.Error(err))
			return cause
		}
		return errors.Wrap(err, errors.ErrorTypeSink, "failed to close sink")
	}
	return cause
}

// closeClient releases the upstream client once the run is over.
func (t *Tap) closeClient() {
	c, ok := t.client.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		t.logger.Warn("failed to close Twilio client", zap.Error(err))
	}
}

// classify reports unstructured stream failures as upstream failures.
func classify(err error) error {
	if errors.TypeOf(err) != "" {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "stream failed")
}
