// Package common small concurrency helpers shared by the feed and
// pipeline packages.
package common

import (
	"context"
	"sync"
	"time"
)

// StartLoopOnce starts a goroutine loop guarded by a sync.Once.
//
// It standardizes the boilerplate shared by the periodic observers
// (depth polling, fill polling): once-guarded start, a derived
// cancelable context handed back through setCancel, and an optional
// ticker whose channel is passed to run. With tick <= 0 the channel is
// nil and never fires.
func StartLoopOnce(
	parent context.Context,
	once *sync.Once,
	setCancel func(context.CancelFunc),
	tick time.Duration,
	run func(loopCtx context.Context, tickC <-chan time.Time),
) {
	start := func() {
		loopCtx, cancel := context.WithCancel(parent)
		if setCancel != nil {
			setCancel(cancel)
		}
		go startLoop(loopCtx, tick, run)
	}
	if once == nil {
		start()
		return
	}
	once.Do(start)
}

func startLoop(loopCtx context.Context, tick time.Duration, run func(context.Context, <-chan time.Time)) {
	var tickC <-chan time.Time
	if tick > 0 {
		ticker := time.NewTicker(tick)
		tickC = ticker.C
		defer ticker.Stop()
	}
	run(loopCtx, tickC)
}
