// Package worker answers pipeline requests received over NATS.
//
// The worker queue-subscribes to:
//
//	{prefix}.ask.clinical    pipeline.ClinicalRequest
//	{prefix}.ask.literature  pipeline.LiteratureRequest
//
// and replies with a Reply. Several workers may share a queue group; each
// request is handled by exactly one of them.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/logging"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

// Runner executes pipeline runs.
type Runner interface {
	Clinical(ctx context.Context, req pipeline.ClinicalRequest) (*pipeline.Result, error)
	Literature(ctx context.Context, req pipeline.LiteratureRequest) (*pipeline.Result, error)
}

// Reply is the message sent back to the requester. Exactly one of Result
// and Error is set.
type Reply struct {
	Result *pipeline.Response      `json:"result,omitempty"`
	Error  *pipeline.ErrorResponse `json:"error,omitempty"`
}

// Config configures a Worker.
type Config struct {
	SubjectPrefix string
	QueueGroup    string
	// Defaults fill zero request parameters.
	Defaults config.PipelineConfig
	// Timeout bounds each run when positive.
	Timeout time.Duration
}

// Worker is a NATS responder for pipeline requests.
type Worker struct {
	nc     *nats.Conn
	runner Runner
	cfg    Config
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	subs    []*nats.Subscription
	stopped bool
}

// New creates a Worker. Call Start to subscribe.
func New(nc *nats.Conn, runner Runner, cfg Config, logger *logging.Logger) *Worker {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "medrag"
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "medrag-workers"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{nc: nc, runner: runner, cfg: cfg, logger: logger.Named("worker"), ctx: ctx, cancel: cancel}
}

// ClinicalSubject returns the clinical request subject.
func (w *Worker) ClinicalSubject() string { return w.cfg.SubjectPrefix + ".ask.clinical" }

// LiteratureSubject returns the literature request subject.
func (w *Worker) LiteratureSubject() string { return w.cfg.SubjectPrefix + ".ask.literature" }

// Start subscribes to both request subjects. A stopped worker cannot be
// restarted.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return fmt.Errorf("%w: worker stopped", apierr.ErrUnavailable)
	}

	handlers := map[string]nats.MsgHandler{
		w.ClinicalSubject():   w.dispatch(w.handleClinical),
		w.LiteratureSubject(): w.dispatch(w.handleLiterature),
	}
	for subject, handler := range handlers {
		sub, err := w.nc.QueueSubscribe(subject, w.cfg.QueueGroup, handler)
		if err != nil {
			w.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		w.subs = append(w.subs, sub)
	}
	if err := w.nc.Flush(); err != nil {
		w.unsubscribeLocked()
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	w.logger.Info(w.ctx, "worker subscribed",
		zap.String("clinical", w.ClinicalSubject()),
		zap.String("literature", w.LiteratureSubject()),
		zap.String("queue", w.cfg.QueueGroup),
	)
	return nil
}

// Run starts the worker and blocks until ctx is done, then stops it.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// Stop unsubscribes, cancels in-flight runs and waits for them to reply.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.unsubscribeLocked()
	w.mu.Unlock()
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) unsubscribeLocked() {
	for _, sub := range w.subs {
		_ = sub.Unsubscribe()
	}
	w.subs = nil
}

type handlerFunc func(ctx context.Context, data []byte) (*pipeline.Result, error)

// dispatch runs each request on its own goroutine so one slow run does not
// block the subscription. Messages delivered after Stop are answered with an
// unavailable error and never reach h.
func (w *Worker) dispatch(h handlerFunc) nats.MsgHandler {
	return func(msg *nats.Msg) {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			w.handle(msg, rejectStopped)
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		go func() {
			defer w.wg.Done()
			w.handle(msg, h)
		}()
	}
}

func rejectStopped(context.Context, []byte) (*pipeline.Result, error) {
	return nil, fmt.Errorf("%w: worker is shutting down", apierr.ErrUnavailable)
}

func (w *Worker) handle(msg *nats.Msg, h handlerFunc) {
	ctx := w.ctx
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}
	if reqID := msg.Header.Get("Nats-Msg-Id"); reqID != "" {
		ctx = logging.WithRequestID(ctx, reqID)
	}

	var reply Reply
	res, err := h(ctx, msg.Data)
	if err != nil {
		reply.Error = pipeline.NewErrorResponse(err)
		w.logger.Warn(ctx, "request failed",
			zap.String("subject", msg.Subject),
			zap.String("kind", string(reply.Error.Kind)),
			zap.Error(err),
		)
	} else {
		reply.Result = pipeline.NewResponse(res)
	}

	data, err := json.Marshal(reply)
	if err != nil {
		w.logger.Error(ctx, "failed to marshal reply", zap.Error(err))
		return
	}
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(data); err != nil {
		w.logger.Warn(ctx, "failed to send reply", zap.Error(err))
	}
}

func (w *Worker) handleClinical(ctx context.Context, data []byte) (*pipeline.Result, error) {
	var req pipeline.ClinicalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: decode request: %v", pipeline.ErrInvalidRequest, err)
	}
	req.ApplyDefaults(w.cfg.Defaults)
	return w.runner.Clinical(ctx, req)
}

func (w *Worker) handleLiterature(ctx context.Context, data []byte) (*pipeline.Result, error) {
	var req pipeline.LiteratureRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: decode request: %v", pipeline.ErrInvalidRequest, err)
	}
	req.ApplyDefaults(w.cfg.Defaults)
	return w.runner.Literature(ctx, req)
}
