package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/settlement"
	"github.com/vocdoni/sealbid-node/types"
)

// feedBuffer is the number of settlement events the monitor can lag behind
// before it starts missing them.
const feedBuffer = 64

// ComputationMonitor watches the resolution computations of an Auctioneer.
// It logs every settlement event and, when a timeout is configured, aborts
// computations whose callback never arrived.
type ComputationMonitor struct {
	auctioneer *Auctioneer
	interval   time.Duration
	timeout    time.Duration
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewComputationMonitor returns a stopped monitor. A zero timeout keeps
// pending computations forever.
func NewComputationMonitor(auctioneer *Auctioneer, interval, timeout time.Duration) *ComputationMonitor {
	return &ComputationMonitor{
		auctioneer: auctioneer,
		interval:   interval,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Start launches the monitor. It returns an error if it is already running.
func (cm *ComputationMonitor) Start(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if cm.interval <= 0 {
		return fmt.Errorf("invalid monitor interval %s", cm.interval)
	}
	ctx, cm.cancel = context.WithCancel(ctx)

	feed := cm.auctioneer.Settler.Feed()
	subID, events := feed.Subscribe(feedBuffer)
	cm.wg.Add(2)
	go func() {
		defer cm.wg.Done()
		defer feed.Unsubscribe(subID)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				logEvent(ev)
			}
		}
	}()
	go func() {
		defer cm.wg.Done()
		ticker := time.NewTicker(cm.interval)
		defer ticker.Stop()
		log.Infow("computation monitor started", "interval", cm.interval.String(), "timeout", cm.timeout.String())
		for {
			select {
			case <-ctx.Done():
				log.Infow("computation monitor stopped")
				return
			case <-ticker.C:
				if _, err := cm.AbortExpired(); err != nil {
					log.Warnw("failed to check pending computations", "error", err)
				}
			}
		}
	}()
	return nil
}

// Stop halts the monitor and waits for its goroutines.
func (cm *ComputationMonitor) Stop() {
	cm.mu.Lock()
	if cm.cancel == nil {
		cm.mu.Unlock()
		return
	}
	cm.cancel()
	cm.cancel = nil
	cm.mu.Unlock()
	cm.wg.Wait()
}

// AbortExpired aborts the pending computations older than the timeout and
// returns how many were aborted. Computations finalized concurrently are
// skipped.
func (cm *ComputationMonitor) AbortExpired() (int, error) {
	pending, err := cm.auctioneer.Storage.ListComputations(types.ComputationPending)
	if err != nil {
		return 0, err
	}
	if len(pending) > 0 {
		log.Debugw("pending computations", "count", len(pending))
	}
	if cm.timeout <= 0 {
		return 0, nil
	}
	deadline := cm.now().Add(-cm.timeout).Unix()
	aborted := 0
	for _, h := range pending {
		if h.CreatedAt > deadline {
			continue
		}
		err := cm.auctioneer.Settler.Abort(h.Offset, fmt.Sprintf("no callback after %s", cm.timeout))
		switch {
		case err == nil:
			aborted++
		case errors.Is(err, settlement.ErrReplayedCallback):
		default:
			return aborted, err
		}
	}
	return aborted, nil
}

func logEvent(ev settlement.Event) {
	switch ev.Kind {
	case settlement.EventSettled:
		log.Infow("settlement event",
			"auctionID", ev.AuctionID.String(),
			"offset", ev.Offset,
			"winnerIndex", ev.WinnerIndex,
			"winningBid", ev.WinningBid)
	case settlement.EventAborted:
		log.Infow("abort event",
			"auctionID", ev.AuctionID.String(),
			"offset", ev.Offset,
			"reason", ev.Reason)
	}
}
