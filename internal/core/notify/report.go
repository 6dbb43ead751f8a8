package notify

import "fmt"

// ReportError pushes an error notification. It is sticky unless opts say
// otherwise.
func (q *Queue) ReportError(text string, opts ...PushOption) Notification {
	return q.Push(CategoryError, text, opts...)
}

// ReportSuccess pushes a success notification.
func (q *Queue) ReportSuccess(text string, opts ...PushOption) Notification {
	return q.Push(CategorySuccess, text, opts...)
}

// ReportWarning pushes a warning notification.
func (q *Queue) ReportWarning(text string, opts ...PushOption) Notification {
	return q.Push(CategoryWarning, text, opts...)
}

// ReportInfo pushes an info notification.
func (q *Queue) ReportInfo(text string, opts ...PushOption) Notification {
	return q.Push(CategoryInfo, text, opts...)
}

// Quick pushes a non-sticky notification that expires after the quick
// expiry.
func (q *Queue) Quick(category Category, text string) Notification {
	return q.Push(category, text, Timed(q.opts.QuickExpiry))
}

// QuickError pushes an error that expires after the quick expiry.
func (q *Queue) QuickError(text string) Notification { return q.Quick(CategoryError, text) }

// QuickSuccess pushes a success that expires after the quick expiry.
func (q *Queue) QuickSuccess(text string) Notification { return q.Quick(CategorySuccess, text) }

// QuickWarning pushes a warning that expires after the quick expiry.
func (q *Queue) QuickWarning(text string) Notification { return q.Quick(CategoryWarning, text) }

// QuickInfo pushes an info message that expires after the quick expiry.
func (q *Queue) QuickInfo(text string) Notification { return q.Quick(CategoryInfo, text) }

// Persistent pushes a sticky notification.
func (q *Queue) Persistent(category Category, text string) Notification {
	return q.Push(category, text, Sticky(true))
}

// PersistentError pushes a sticky error.
func (q *Queue) PersistentError(text string) Notification { return q.Persistent(CategoryError, text) }

// PersistentSuccess pushes a sticky success.
func (q *Queue) PersistentSuccess(text string) Notification {
	return q.Persistent(CategorySuccess, text)
}

// PersistentWarning pushes a sticky warning.
func (q *Queue) PersistentWarning(text string) Notification {
	return q.Persistent(CategoryWarning, text)
}

// PersistentInfo pushes a sticky info message.
func (q *Queue) PersistentInfo(text string) Notification { return q.Persistent(CategoryInfo, text) }

// Errorf publishes a quick error notification. Like the other formatted
// helpers it uses the quick expiry, not the default one.
func (q *Queue) Errorf(format string, args ...any) Notification {
	return q.QuickError(fmt.Sprintf(format, args...))
}

// Successf publishes a quick success notification.
func (q *Queue) Successf(format string, args ...any) Notification {
	return q.QuickSuccess(fmt.Sprintf(format, args...))
}

// Warnf publishes a quick warning notification.
func (q *Queue) Warnf(format string, args ...any) Notification {
	return q.QuickWarning(fmt.Sprintf(format, args...))
}

// Infof publishes a quick info notification.
func (q *Queue) Infof(format string, args ...any) Notification {
	return q.QuickInfo(fmt.Sprintf(format, args...))
}
