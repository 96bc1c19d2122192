package logger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type componentCounters struct {
	warns  int64
	errors int64
}

var counters sync.Map // map[string]*componentCounters

func countersFor(component string) *componentCounters {
	v, _ := counters.LoadOrStore(component, &componentCounters{})
	return v.(*componentCounters)
}

func recordWarn(component string) {
	atomic.AddInt64(&countersFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&countersFor(component).errors, 1)
}

// StartReport periodically logs accumulated warn/error counts per component
// until the context is cancelled. Counters are reset after each report.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				counters.Range(func(key, value any) bool {
					cc := value.(*componentCounters)
					warns := atomic.SwapInt64(&cc.warns, 0)
					errs := atomic.SwapInt64(&cc.errors, 0)
					if warns == 0 && errs == 0 {
						return true
					}
					log.WithComponent("report").WithFields(Fields{
						"target": key,
						"warns":  warns,
						"errors": errs,
					}).Info("component health report")
					return true
				})
			}
		}
	}()
}
