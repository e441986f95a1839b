package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/vocdoni/sealbid-node/dispatcher"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/registry"
	"github.com/vocdoni/sealbid-node/settlement"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
)

const (
	maxRequestBodyLog = 512 // Maximum length of request body to log
	shutdownTimeout   = 10 * time.Second
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host       string
	Port       int
	Storage    *storage.Storage
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Settler    *settlement.Settler
	// Identity of the computation cluster, published through /info.
	ClusterAddress   common.Address
	ClusterPublicKey types.PublicKey
	// CallbackSeed derives the secret path the cluster posts outputs to.
	// The callback endpoint is disabled when empty.
	CallbackSeed string
}

// API type represents the API HTTP server.
type API struct {
	router     *chi.Mux
	server     *http.Server
	storage    *storage.Storage
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	settler    *settlement.Settler
	info       NodeInfo
	// callbackUUID is nil if the callback endpoint is disabled
	callbackUUID *uuid.UUID
}

// New creates a new API instance with the given configuration and starts
// the HTTP server. The server shuts down when ctx is done.
func New(ctx context.Context, conf *APIConfig) (*API, error) {
	a, err := newAPI(conf)
	if err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s:%d: %w", conf.Host, conf.Port, err)
	}
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", listener.Addr().String())
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			log.Warnw("failed to shutdown API server", "error", err)
		}
	}()
	return a, nil
}

// newAPI validates conf and builds the router without starting a server.
func newAPI(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil || conf.Registry == nil || conf.Dispatcher == nil || conf.Settler == nil {
		return nil, fmt.Errorf("missing API dependencies")
	}
	a := &API{
		storage:    conf.Storage,
		registry:   conf.Registry,
		dispatcher: conf.Dispatcher,
		settler:    conf.Settler,
		info:       newNodeInfo(conf.ClusterAddress, conf.ClusterPublicKey, conf.Registry.DefaultMaxBidders()),
	}
	if conf.CallbackSeed != "" {
		u, err := CallbackSeedToUUID(conf.CallbackSeed)
		if err != nil {
			return nil, err
		}
		a.callbackUUID = u
		log.Infow("callback API enabled", "url", EndpointWithParam(CallbackEndpoint, CallbackUUIDURLParam, u.String()))
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	a.router.Get(InfoEndpoint, a.nodeInfo)

	// auction endpoints
	log.Infow("register handler", "endpoint", AuctionsEndpoint, "method", "POST")
	a.router.Post(AuctionsEndpoint, a.newAuction)
	log.Infow("register handler", "endpoint", AuctionsEndpoint, "method", "GET")
	a.router.Get(AuctionsEndpoint, a.listAuctions)
	a.router.Group(func(r chi.Router) {
		r.Use(auctionIDMiddleware)
		log.Infow("register handler", "endpoint", AuctionEndpoint, "method", "GET")
		r.Get(AuctionEndpoint, a.auction)
		log.Infow("register handler", "endpoint", AuctionBidsEndpoint, "method", "POST")
		r.Post(AuctionBidsEndpoint, a.placeBid)
		log.Infow("register handler", "endpoint", AuctionResolveEndpoint, "method", "POST")
		r.Post(AuctionResolveEndpoint, a.resolveAuction)
		log.Infow("register handler", "endpoint", AuctionSettlementEndpoint, "method", "GET")
		r.Get(AuctionSettlementEndpoint, a.settlement)
	})

	// computation endpoints
	log.Infow("register handler", "endpoint", ComputationEndpoint, "method", "GET")
	a.router.Get(ComputationEndpoint, a.computation)
	if a.callbackUUID != nil {
		log.Infow("register handler", "endpoint", CallbackEndpoint, "method", "POST")
		a.router.Post(CallbackEndpoint, a.callback)
	}
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}
