package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// WaitNetworkIdle watches the target behind ctx and closes the returned channel
// once no request has been in flight for idleAfter. Call arm after the
// navigation returns so that pages issuing no further requests still go idle.
// The network domain must be enabled on the target.
func WaitNetworkIdle(ctx context.Context, idleAfter time.Duration) (idle <-chan struct{}, arm func()) {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() {
					close(idleChan)
				})
			}
		})
	}

	chromedp.ListenTarget(ctx,
		func(ev any) {
			switch ev.(type) {
			case *network.EventRequestWillBeSent:
				atomic.AddInt32(&activeReqs, 1)
			case *network.EventLoadingFinished, *network.EventLoadingFailed:
				n := atomic.AddInt32(&activeReqs, -1)
				if n < 0 {
					// requests that started before we attached
					atomic.StoreInt32(&activeReqs, 0)
					n = 0
				}
				if n == 0 {
					startTimer()
				}
			}
		})

	return idleChan, startTimer
}
