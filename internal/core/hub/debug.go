package hub

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hay-kot/pulse/internal/core/activity"
	"github.com/hay-kot/pulse/internal/core/notify"
)

// RegisterDebugLogger subscribes to both observables and logs every
// snapshot. Busy transitions are logged at info, everything else at debug.
// Subscriber panics are reported at error.
func RegisterDebugLogger(h *Hub, logger zerolog.Logger) {
	wasBusy := h.Activity.IsBusy()
	h.track(h.Activity.State().Subscribe(func(s activity.State) {
		if s.Busy != wasBusy {
			wasBusy = s.Busy
			logger.Info().Bool("busy", s.Busy).Int("count", s.Count).Msg("busy changed")
			return
		}
		logger.Debug().Int("count", s.Count).Msg("activity count")
	}))

	h.track(h.Messages.Observe().Subscribe(func(items []notify.Notification) {
		ev := logger.Debug().Int("items", len(items))
		if len(items) > 0 {
			last := items[len(items)-1]
			ev = ev.Str("latest_id", last.ID).Str("latest_category", string(last.Category))
		}
		ev.Msg("messages changed")
	}))

	onPanic := func(source string) func(any) {
		return func(recovered any) {
			logger.Error().
				Str("source", source).
				Str("panic", fmt.Sprint(recovered)).
				Msg("subscriber panicked")
		}
	}
	h.Activity.OnSubscriberPanic(onPanic("activity"))
	h.Messages.OnSubscriberPanic(onPanic("notify"))
}
