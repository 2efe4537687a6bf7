package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
	logger  *slog.Logger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty; a nil Dispatcher drops every event.
func NewDispatcher(configs []Config, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{configs: configs, logger: logger, ctx: ctx, cancel: cancel}
}

// Dispatch sends the event to all webhooks whose Events list matches
// event.Type. Delivery runs on its own goroutine and never blocks the
// caller.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			if err := Send(d.ctx, cfg, event); err != nil {
				d.logger.Warn("alert delivery failed", "type", event.Type, "format", cfg.Format, "error", err)
			}
		}(cfg)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Stop abandons pending retries and waits for in-flight deliveries.
func (d *Dispatcher) Stop() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Type {
			return true
		}
	}
	return false
}
