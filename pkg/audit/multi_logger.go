package audit

import (
	"context"
	"errors"
	"sync"
)

// MultiLogger fans events out to several sinks
type MultiLogger struct {
	loggers []Logger
	async   bool
	onError func(error)
	wg      sync.WaitGroup
}

// NewMultiLogger writes synchronously to every sink
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// SetAsync makes Log return immediately; sink errors are passed to onError,
// which may be nil.
func (m *MultiLogger) SetAsync(async bool, onError func(error)) {
	m.async = async
	m.onError = onError
}

// Log writes event to every sink. In synchronous mode every sink is tried
// and the failures are joined.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if m.async {
		ctx = context.WithoutCancel(ctx)
		for _, l := range m.loggers {
			m.wg.Add(1)
			go func(l Logger) {
				defer m.wg.Done()
				if err := l.Log(ctx, event); err != nil && m.onError != nil {
					m.onError(err)
				}
			}(l)
		}
		return nil
	}

	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until pending asynchronous writes finish
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Close waits for pending writes and closes every sink
func (m *MultiLogger) Close() error {
	m.wg.Wait()
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
