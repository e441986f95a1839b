package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/sealbid-node/api"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types"
)

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	auctioneer       *Auctioneer
	API              *api.API
	mu               sync.Mutex
	cancel           context.CancelFunc
	host             string
	port             int
	callbackSeed     string
	clusterAddress   common.Address
	clusterPublicKey types.PublicKey
}

// NewAPI creates a new APIService instance serving the operations of
// auctioneer.
func NewAPI(auctioneer *Auctioneer, host string, port int, disableLogging bool) *APIService {
	if disableLogging {
		api.DisabledLogging = disableLogging
		log.Debugw("API logging is disabled")
	}
	return &APIService{
		auctioneer: auctioneer,
		host:       host,
		port:       port,
	}
}

// SetClusterInfo configures the cluster identity published by the API and
// the seed of the callback endpoint. An empty seed disables the endpoint.
func (as *APIService) SetClusterInfo(address common.Address, publicKey types.PublicKey, callbackSeed string) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.clusterAddress = address
	as.clusterPublicKey = publicKey
	as.callbackSeed = callbackSeed
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, as.cancel = context.WithCancel(ctx)

	var err error
	as.API, err = api.New(ctx, &api.APIConfig{
		Host:             as.host,
		Port:             as.port,
		Storage:          as.auctioneer.Storage,
		Registry:         as.auctioneer.Registry,
		Dispatcher:       as.auctioneer.Dispatcher,
		Settler:          as.auctioneer.Settler,
		ClusterAddress:   as.clusterAddress,
		ClusterPublicKey: as.clusterPublicKey,
		CallbackSeed:     as.callbackSeed,
	})
	if err != nil {
		as.cancel()
		as.cancel = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		as.cancel()
		as.cancel = nil
	}
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}
