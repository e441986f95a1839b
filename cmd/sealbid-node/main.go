package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vocdoni/sealbid-node/api"
	"github.com/vocdoni/sealbid-node/backend"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/crypto/sealed"
	"github.com/vocdoni/sealbid-node/crypto/signatures/ethereum"
	"github.com/vocdoni/sealbid-node/db/metadb"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/service"
	"github.com/vocdoni/sealbid-node/storage"
	"github.com/vocdoni/sealbid-node/types"
)

// Services holds all the running services
type Services struct {
	Storage    *storage.Storage
	Cluster    *service.ClusterService
	Auctioneer *service.Auctioneer
	API        *service.APIService
	Monitor    *service.ComputationMonitor
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting sealbid-node", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		shutdownServices(services)
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// clusterKeys returns the signing identity and the sealing key pair of the
// local cluster. Empty keys are generated, which makes bids sealed to a
// previous run unreadable.
func clusterKeys(cfg *Config) (*ethereum.Signer, *sealed.KeyPair, error) {
	var signer *ethereum.Signer
	var err error
	if cfg.Cluster.PrivKey != "" {
		signer, err = ethereum.NewSignerFromHex(cfg.Cluster.PrivKey)
	} else {
		log.Warnw("no cluster.privkey provided, using an ephemeral signing key")
		signer, err = ethereum.NewSigner()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("invalid cluster signing key: %w", err)
	}

	var keys *sealed.KeyPair
	if cfg.Cluster.X25519Key != "" {
		priv, err := types.HexStringToHexBytes(cfg.Cluster.X25519Key)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid cluster x25519 key: %w", err)
		}
		keys, err = sealed.KeyPairFromPrivate(priv)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid cluster x25519 key: %w", err)
		}
	} else {
		log.Warnw("no cluster.x25519key provided, using an ephemeral sealing key")
		if keys, err = sealed.GenerateKeyPair(); err != nil {
			return nil, nil, err
		}
	}
	return signer, keys, nil
}

// loadArtifacts returns the resolution circuit artifacts. Prebuilt artifacts
// are read from the configured directory, otherwise they are built on
// demand. With proving enabled the default slot count is prepared upfront.
func loadArtifacts(cfg *Config) (*tournament.ArtifactSet, error) {
	var set *tournament.ArtifactSet
	if cfg.Cluster.Artifacts != "" {
		var err error
		if set, err = tournament.LoadArtifactSet(cfg.Cluster.Artifacts, cfg.Cluster.Prove); err != nil {
			return nil, err
		}
	} else {
		set = tournament.NewArtifactSet(cfg.Cluster.Prove)
	}
	if !cfg.Cluster.Prove && !cfg.Settlement.RequireProof {
		return set, nil
	}
	if err := service.PrepareArtifacts(set, artifactsTimeout, cfg.Auction.MaxBidders); err != nil {
		return nil, err
	}
	return set, nil
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	dbDir := filepath.Join(cfg.Datadir, "storage")
	log.Infow("initializing storage", "datadir", dbDir, "type", cfg.DB.Type)
	storagedb, err := metadb.New(cfg.DB.Type, dbDir)
	if err != nil {
		return services, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.Storage = storage.New(storagedb)

	signer, keys, err := clusterKeys(cfg)
	if err != nil {
		return services, err
	}

	artifacts, err := loadArtifacts(cfg)
	if err != nil {
		return services, fmt.Errorf("failed to prepare circuit artifacts: %w", err)
	}

	var callback backend.Callback
	if cfg.API.CallbackSeed != "" {
		url, err := api.CallbackURL(fmt.Sprintf("http://%s:%d", localCallbackHost, cfg.API.Port), cfg.API.CallbackSeed)
		if err != nil {
			return services, err
		}
		callback = backend.NewHTTPCallback(url)
	} else {
		callback = backend.CallbackFunc(func(ctx context.Context, out *types.SignedOutput) error {
			return services.Auctioneer.Deliver(ctx, out)
		})
	}

	services.Cluster, err = service.NewCluster(backend.Config{
		Signer:    signer,
		Keys:      keys,
		Callback:  callback,
		Artifacts: artifacts,
		Prove:     cfg.Cluster.Prove,
		Workers:   cfg.Cluster.Workers,
		QueueSize: cfg.Cluster.QueueSize,
	})
	if err != nil {
		return services, err
	}

	services.Auctioneer, err = service.NewAuctioneer(services.Storage, services.Cluster, service.AuctioneerConfig{
		MaxBidders:   cfg.Auction.MaxBidders,
		Cluster:      services.Cluster.Address(),
		Artifacts:    artifacts,
		RequireProof: cfg.Settlement.RequireProof,
	})
	if err != nil {
		return services, err
	}

	log.Infow("starting computation cluster",
		"address", services.Cluster.Address().Hex(),
		"publicKey", services.Cluster.PublicKey().String(),
		"workers", cfg.Cluster.Workers,
		"prove", cfg.Cluster.Prove)
	if err := services.Cluster.Start(ctx); err != nil {
		return services, fmt.Errorf("failed to start computation cluster: %w", err)
	}

	log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port,
		"callbackEndpoint", cfg.API.CallbackSeed != "")
	services.API = service.NewAPI(services.Auctioneer, cfg.API.Host, cfg.API.Port, cfg.API.DisableLogging)
	services.API.SetClusterInfo(services.Cluster.Address(), services.Cluster.PublicKey(), cfg.API.CallbackSeed)
	if err := services.API.Start(ctx); err != nil {
		return services, fmt.Errorf("failed to start API service: %w", err)
	}

	log.Infow("starting computation monitor", "interval", monitorInterval.String(), "timeout", cfg.Cluster.Timeout.String())
	services.Monitor = service.NewComputationMonitor(services.Auctioneer, monitorInterval, cfg.Cluster.Timeout)
	if err := services.Monitor.Start(ctx); err != nil {
		return services, fmt.Errorf("failed to start computation monitor: %w", err)
	}

	log.Info("sealbid-node is running, ready to resolve auctions!")
	return services, nil
}

// shutdownServices gracefully shuts down all services
func shutdownServices(services *Services) {
	if services == nil {
		return
	}

	// Stop services in reverse order of startup
	if services.Monitor != nil {
		services.Monitor.Stop()
	}
	if services.API != nil {
		services.API.Stop()
	}
	if services.Cluster != nil {
		services.Cluster.Stop()
	}
	if services.Storage != nil {
		services.Storage.Close()
	}
}
