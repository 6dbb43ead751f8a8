package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/pulse/pkg/clock"
	"github.com/hay-kot/pulse/pkg/observe"
	"github.com/hay-kot/pulse/pkg/randid"
)

const (
	// DefaultExpiry applies to non-sticky notifications pushed without an
	// explicit expiry.
	DefaultExpiry = 4000 * time.Millisecond
	// DefaultQuickExpiry applies to the Quick* and formatted helpers.
	DefaultQuickExpiry = 2500 * time.Millisecond

	idLength = 8
)

// Options tunes a Queue. Zero values fall back to the package defaults.
type Options struct {
	DefaultExpiry time.Duration
	QuickExpiry   time.Duration
	// MaxItems caps the queue; the oldest notification is evicted first.
	// Zero means unlimited.
	MaxItems int
}

func (o Options) withDefaults() Options {
	if o.DefaultExpiry <= 0 {
		o.DefaultExpiry = DefaultExpiry
	}
	if o.QuickExpiry <= 0 {
		o.QuickExpiry = DefaultQuickExpiry
	}
	if o.MaxItems < 0 {
		o.MaxItems = 0
	}
	return o
}

type pushOptions struct {
	sticky bool
	expiry time.Duration
}

// PushOption customises a single Push.
type PushOption func(*pushOptions)

// Sticky sets whether the notification waits for an explicit Dismiss.
func Sticky(sticky bool) PushOption {
	return func(o *pushOptions) { o.sticky = sticky }
}

// Expiry sets the lifetime of a non-sticky notification. Non-positive
// values select the queue's default expiry.
func Expiry(d time.Duration) PushOption {
	return func(o *pushOptions) { o.expiry = d }
}

// Timed is shorthand for Sticky(false) with Expiry(d).
func Timed(d time.Duration) PushOption {
	return func(o *pushOptions) {
		o.sticky = false
		o.expiry = d
	}
}

// expiryTimer ties a scheduled dismissal to the push that armed it, so a
// late callback cannot remove a different notification.
type expiryTimer struct {
	timer clock.Timer
}

// Queue is an insertion-ordered set of notifications. It is safe for
// concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []Notification
	timers map[string]*expiryTimer

	opts   Options
	clock  clock.Clock
	view   *observe.Value[[]Notification]
	logger zerolog.Logger
	newID  func() string
}

// NewQueue creates an empty queue. Expiry timers are scheduled on clk.
func NewQueue(opts Options, clk clock.Clock, logger zerolog.Logger) *Queue {
	return &Queue{
		timers: make(map[string]*expiryTimer),
		opts:   opts.withDefaults(),
		clock:  clk,
		view:   observe.New[[]Notification](nil),
		logger: logger,
		newID:  func() string { return randid.Generate(idLength) },
	}
}

// Options returns the effective options after defaults were applied.
func (q *Queue) Options() Options {
	return q.opts
}

// Observe returns the read-only observable item list. Each snapshot is a
// private copy.
func (q *Queue) Observe() observe.Reader[[]Notification] {
	return q.view
}

// OnSubscriberPanic registers a hook for panics raised by Observe
// subscribers.
func (q *Queue) OnSubscriberPanic(fn func(recovered any)) {
	q.view.OnPanic(fn)
}

// Push appends a notification. Notifications are sticky unless an option
// says otherwise; non-sticky ones are dismissed when their expiry elapses.
// category should be one of the Category constants; anything else is
// queued as CategoryInfo and logged.
func (q *Queue) Push(category Category, text string, opts ...PushOption) Notification {
	po := pushOptions{sticky: true}
	for _, opt := range opts {
		opt(&po)
	}

	if !category.IsValid() {
		q.logger.Warn().Str("category", string(category)).Msg("unknown notification category, using info")
		category = CategoryInfo
	}

	q.mu.Lock()

	now := q.clock.Now()
	n := Notification{
		ID:        q.uniqueIDLocked(),
		Category:  category,
		Text:      text,
		Sticky:    po.sticky,
		Expiry:    po.expiry,
		CreatedAt: now,
	}

	if !n.Sticky {
		if n.Expiry <= 0 {
			n.Expiry = q.opts.DefaultExpiry
		}
		n.ExpiresAt = now.Add(n.Expiry)
		q.armLocked(n.ID, n.Expiry)
	}

	q.items = append(q.items, n)

	if q.opts.MaxItems > 0 && len(q.items) > q.opts.MaxItems {
		evict := len(q.items) - q.opts.MaxItems
		for _, old := range q.items[:evict] {
			q.stopLocked(old.ID)
			q.logger.Debug().Str("id", old.ID).Msg("evicted oldest notification")
		}
		q.items = slices.Clone(q.items[evict:])
	}

	q.logger.Debug().
		Str("id", n.ID).
		Str("category", string(n.Category)).
		Bool("sticky", n.Sticky).
		Dur("expiry", n.Expiry).
		Msg("notification pushed")

	q.stageLocked()
	q.mu.Unlock()

	q.view.Flush()
	return n
}

// Dismiss removes the notification with the given id and cancels its
// expiry timer. It returns false, and publishes nothing, if id is not
// queued.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	if !q.removeLocked(id) {
		q.mu.Unlock()
		return false
	}
	q.logger.Debug().Str("id", id).Msg("notification dismissed")
	q.stageLocked()
	q.mu.Unlock()

	q.view.Flush()
	return true
}

// ClearAll removes every notification and cancels every pending timer.
func (q *Queue) ClearAll() {
	q.mu.Lock()
	for id := range q.timers {
		q.stopLocked(id)
	}
	cleared := len(q.items)
	q.items = nil
	q.logger.Debug().Int("cleared", cleared).Msg("notifications cleared")
	q.stageLocked()
	q.mu.Unlock()

	q.view.Flush()
}

// Items returns a copy of the queued notifications, oldest first.
func (q *Queue) Items() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items)
}

// Len returns the number of queued notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Get returns the queued notification with the given id.
func (q *Queue) Get(id string) (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexLocked(id); i >= 0 {
		return q.items[i], true
	}
	return Notification{}, false
}

// CountByCategory counts notifications in any of the given categories, or
// all notifications when none are given.
func (q *Queue) CountByCategory(categories ...Category) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(categories) == 0 {
		return len(q.items)
	}

	n := 0
	for _, item := range q.items {
		if slices.Contains(categories, item.Category) {
			n++
		}
	}
	return n
}

// CountSticky counts notifications that wait for an explicit dismiss.
func (q *Queue) CountSticky() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, item := range q.items {
		if item.Sticky {
			n++
		}
	}
	return n
}

// HasCategory reports whether any queued notification is in category.
func (q *Queue) HasCategory(category Category) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.ContainsFunc(q.items, func(n Notification) bool {
		return n.Category == category
	})
}

// MostRecent returns the newest notification.
func (q *Queue) MostRecent() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Notification{}, false
	}
	return q.items[len(q.items)-1], true
}

func (q *Queue) armLocked(id string, d time.Duration) {
	et := &expiryTimer{}
	et.timer = q.clock.AfterFunc(d, func() { q.expire(id, et) })
	q.timers[id] = et
}

func (q *Queue) expire(id string, et *expiryTimer) {
	q.mu.Lock()
	if q.timers[id] != et {
		// dismissed, cleared or evicted before the timer fired
		q.mu.Unlock()
		return
	}
	q.removeLocked(id)
	q.logger.Debug().Str("id", id).Msg("notification expired")
	q.stageLocked()
	q.mu.Unlock()

	q.view.Flush()
}

func (q *Queue) removeLocked(id string) bool {
	i := q.indexLocked(id)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	q.stopLocked(id)
	return true
}

func (q *Queue) stopLocked(id string) {
	if et, ok := q.timers[id]; ok {
		et.timer.Stop()
		delete(q.timers, id)
	}
}

func (q *Queue) indexLocked(id string) int {
	return slices.IndexFunc(q.items, func(n Notification) bool { return n.ID == id })
}

func (q *Queue) uniqueIDLocked() string {
	for {
		id := q.newID()
		if q.indexLocked(id) < 0 {
			return id
		}
	}
}

func (q *Queue) stageLocked() {
	q.view.Stage(slices.Clone(q.items))
}

// pendingTimers returns the number of armed expiry timers.
func (q *Queue) pendingTimers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}
