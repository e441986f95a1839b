package service

import (
	"context"
	"time"

	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/log"
	"golang.org/x/sync/errgroup"
)

// PrepareArtifacts builds or loads the resolution circuit artifacts for
// every slot count concurrently, so the first resolution of each size does
// not pay for compilation.
func PrepareArtifacts(set *tournament.ArtifactSet, timeout time.Duration, slotCounts ...int) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var g errgroup.Group
	for _, n := range slotCounts {
		g.Go(func() error {
			start := time.Now()
			if _, err := set.Get(n); err != nil {
				return err
			}
			log.Debugw("resolution circuit ready", "slots", n, "took", time.Since(start).String())
			return nil
		})
	}
	log.Infow("preparing resolution circuit artifacts", "slotCounts", slotCounts, "timeout", timeout.String())

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
