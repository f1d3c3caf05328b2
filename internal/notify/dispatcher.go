package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"modular-auth/internal/metrics"
)

// ErrDispatcherStopped is returned by Enqueue before Start or after Shutdown.
var ErrDispatcherStopped = errors.New("mail dispatcher is not running")

// Dispatcher delivers messages in the background so that request handlers
// never wait on the mail server.
type Dispatcher interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(ctx context.Context, msg ForgotPasswordMessage) error
}

type DispatcherConfig struct {
	Workers     int
	SendTimeout time.Duration
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics
}

type dispatcher struct {
	cfg       DispatcherConfig
	messenger Messenger

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

func NewDispatcher(cfg DispatcherConfig, messenger Messenger) Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &dispatcher{
		cfg:       cfg,
		messenger: messenger,
		sem:       make(chan struct{}, cfg.Workers),
		closed:    true,
	}
}

func (d *dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.closed = false
	d.cfg.Logger.Infof("mail dispatcher started, workers: %d", d.cfg.Workers)
	return nil
}

// Shutdown stops accepting messages and waits for queued ones to finish.
func (d *dispatcher) Shutdown() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
	d.cfg.Logger.Info("mail dispatcher stopped")
}

func (d *dispatcher) Enqueue(_ context.Context, msg ForgotPasswordMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherStopped
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-d.ctx.Done():
			d.cfg.Logger.WithField("username", msg.Username).Warn("dropping mail: dispatcher cancelled")
			return
		case d.sem <- struct{}{}:
			defer func() { <-d.sem }()
			d.deliver(msg)
		}
	}()
	return nil
}

func (d *dispatcher) deliver(msg ForgotPasswordMessage) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
	defer cancel()

	logger := d.cfg.Logger.WithField("username", msg.Username)
	err := d.messenger.SendForgotPassword(ctx, msg)
	d.cfg.Metrics.MailDelivery(err)
	if err != nil {
		logger.WithError(err).Error("failed to deliver forgot-password mail")
		return
	}
	logger.Debug("forgot-password mail delivered")
}
