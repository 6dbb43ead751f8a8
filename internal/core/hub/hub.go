// Package hub wires the activity counter and message queue together as the
// single state broadcaster handed to collaborators.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/hay-kot/pulse/internal/core/activity"
	"github.com/hay-kot/pulse/internal/core/config"
	"github.com/hay-kot/pulse/internal/core/logging"
	"github.com/hay-kot/pulse/internal/core/notify"
	"github.com/hay-kot/pulse/pkg/clock"
)

// Hub owns one activity counter and one message queue. Construct it once in
// the composition root and pass the pointer to consumers.
type Hub struct {
	Activity *activity.Counter
	Messages *notify.Queue

	mu       sync.Mutex
	cleanups []func()
}

// New constructs a Hub from explicit dependencies.
func New(cfg config.NotifyConfig, clk clock.Clock, logger zerolog.Logger) *Hub {
	return &Hub{
		Activity: activity.NewCounter(logging.For(logger, "activity")),
		Messages: notify.NewQueue(cfg.QueueOptions(), clk, logging.For(logger, "notify")),
	}
}

// Close clears every message, cancelling pending expiry timers, and removes
// subscriptions registered through the Hub.
func (h *Hub) Close() {
	h.mu.Lock()
	cleanups := h.cleanups
	h.cleanups = nil
	h.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
	h.Messages.ClearAll()
}

func (h *Hub) track(unsubscribe func()) {
	h.mu.Lock()
	h.cleanups = append(h.cleanups, unsubscribe)
	h.mu.Unlock()
}
