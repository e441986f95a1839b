// Package backend is a local confidential computation cluster. It holds the
// cluster x25519 key and signing identity, runs resolution requests on a
// pool of workers and reports signed outputs through a Callback.
//
// Plaintext bids only exist inside a worker while a request executes.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/crypto/sealed"
	"github.com/vocdoni/sealbid-node/crypto/signatures/ethereum"
	"github.com/vocdoni/sealbid-node/dispatcher"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
)

var (
	ErrQueueFull  = errors.New("computation queue is full")
	ErrNotRunning = errors.New("cluster is not running")
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
	callbackRetries  = 3
	callbackBackoff  = 500 * time.Millisecond
)

// Config holds the cluster parameters.
type Config struct {
	Signer   *ethereum.Signer
	Keys     *sealed.KeyPair
	Callback Callback
	// Artifacts, when set, is used to check every result against the
	// resolution constraint system.
	Artifacts *tournament.ArtifactSet
	// Prove attaches a groth16 proof to every successful output. It
	// requires Artifacts.
	Prove     bool
	Workers   int
	QueueSize int
}

// Cluster executes computation requests asynchronously.
type Cluster struct {
	signer    *ethereum.Signer
	keys      *sealed.KeyPair
	callback  Callback
	artifacts *tournament.ArtifactSet
	prove     bool
	workers   int

	queue   chan *types.ComputationRequest
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan error
}

var _ dispatcher.Backend = (*Cluster)(nil)

// New returns a stopped cluster.
func New(conf Config) (*Cluster, error) {
	if conf.Signer == nil || conf.Keys == nil {
		return nil, fmt.Errorf("signer and encryption keys are required")
	}
	if conf.Callback == nil {
		return nil, fmt.Errorf("callback is required")
	}
	if conf.Prove && conf.Artifacts == nil {
		return nil, fmt.Errorf("proving requires circuit artifacts")
	}
	if conf.Workers <= 0 {
		conf.Workers = defaultWorkers
	}
	if conf.QueueSize <= 0 {
		conf.QueueSize = defaultQueueSize
	}
	return &Cluster{
		signer:    conf.Signer,
		keys:      conf.Keys,
		callback:  conf.Callback,
		artifacts: conf.Artifacts,
		prove:     conf.Prove,
		workers:   conf.Workers,
		queue:     make(chan *types.ComputationRequest, conf.QueueSize),
	}, nil
}

// Address is the identity the cluster signs outputs with.
func (c *Cluster) Address() common.Address {
	return c.signer.Address()
}

// PublicKey is the cluster x25519 key requesters encrypt bids to.
func (c *Cluster) PublicKey() types.PublicKey {
	return c.keys.Public
}

// Submit enqueues req without blocking.
func (c *Cluster) Submit(ctx context.Context, req *types.ComputationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case c.queue <- req:
		log.Debugw("computation queued", "offset", req.Offset, "queued", len(c.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers. They run until ctx is done or Stop is called.
func (c *Cluster) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan error, 1)
	c.running = true
	go func() {
		c.done <- c.run(ctx)
	}()
	log.Infow("computation cluster started",
		"address", c.Address().Hex(),
		"workers", c.workers,
		"prove", c.prove)
}

// Stop stops the workers and waits for the running computations to finish.
func (c *Cluster) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.cancel()
	done := c.done
	c.mu.Unlock()
	return <-done
}
