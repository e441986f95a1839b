package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vocdoni/sealbid-node/backend"
	"github.com/vocdoni/sealbid-node/log"
)

// ClusterService runs the local computation cluster.
type ClusterService struct {
	*backend.Cluster
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCluster creates a stopped cluster service.
func NewCluster(conf backend.Config) (*ClusterService, error) {
	cl, err := backend.New(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create computation cluster: %w", err)
	}
	return &ClusterService{Cluster: cl}, nil
}

// Start launches the cluster workers. It returns an error if the service is
// already running.
func (cs *ClusterService) Start(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, cs.cancel = context.WithCancel(ctx)
	cs.Cluster.Start(ctx)
	return nil
}

// Stop halts the workers and waits for the running computations.
func (cs *ClusterService) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.cancel == nil {
		return
	}
	cs.cancel()
	cs.cancel = nil
	if err := cs.Cluster.Stop(); err != nil {
		log.Warnw("computation cluster stopped with error", "error", err)
	}
	log.Infow("computation cluster service stopped")
}
