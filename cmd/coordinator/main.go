// cmd/coordinator is the cluster controller: it spawns the leader and
// followers, runs the health-check loop, and exposes the quorum write/read
// data plane.
//
// Example — 3 followers, W=2, R=2:
//
//	./coordinator --followers 3 --write-quorum 2 --read-quorum 2 \
//	              --registry http://localhost:9000 --node-binary ./node
//
// Settings can also come from a YAML file; explicitly set flags win over
// the file, the file wins over defaults:
//
//	./coordinator --config cluster.yaml --write-quorum 3
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"replicated-kvstore/internal/api"
	"replicated-kvstore/internal/cluster"
	"replicated-kvstore/internal/coordinator"
)

func main() {
	defaults := coordinator.DefaultConfig()

	configPath := flag.String("config", "", "Optional YAML config file")
	port := flag.Int("port", defaults.Port, "Listen port")
	followers := flag.Int("followers", defaults.Followers, "Follower count at bootstrap")
	writeQuorum := flag.Int("write-quorum", defaults.WriteQuorum, "Sync acks required per write (W)")
	readQuorum := flag.Int("read-quorum", defaults.ReadQuorum, "Follower responses required per read (R)")
	basePort := flag.Int("base-port", defaults.BasePort, "Port layout anchor: leader at base+1")
	registryURL := flag.String("registry", defaults.RegistryURL, "Registry base URL")
	nodeBinary := flag.String("node-binary", defaults.NodeBinary, "Path to the node executable")
	syncDelay := flag.Duration("sync-delay", 0, "Artificial sync replication delay on nodes")
	replicationDelay := flag.Duration("replication-delay", 0, "Artificial async replication delay on nodes")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg := defaults
	if *configPath != "" {
		loaded, err := coordinator.LoadFile(*configPath, defaults)
		if err != nil {
			log.Fatal().Err(err).Msg("config load failed")
		}
		cfg = loaded
	}

	// Explicitly set flags override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "followers":
			cfg.Followers = *followers
		case "write-quorum":
			cfg.WriteQuorum = *writeQuorum
		case "read-quorum":
			cfg.ReadQuorum = *readQuorum
		case "base-port":
			cfg.BasePort = *basePort
		case "registry":
			cfg.RegistryURL = *registryURL
		case "node-binary":
			cfg.NodeBinary = *nodeBinary
		}
	})
	cfg.SyncDelay = *syncDelay
	cfg.AsyncDelay = *replicationDelay

	// Refuse quorums the cluster can never satisfy.
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid quorum configuration")
	}

	launcher := &cluster.ExecLauncher{
		Binary: cfg.NodeBinary,
		Log:    log.With().Str("component", "launcher").Logger(),
	}
	coord := coordinator.New(cfg, launcher, log)

	if err := coord.Bootstrap(); err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}

	healthCtx, stopHealth := context.WithCancel(context.Background())
	go coord.RunHealthLoop(healthCtx)

	router := api.NewRouter(log.With().Str("component", "http").Logger())
	coordinator.NewHandler(coord).Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().
			Int("port", cfg.Port).
			Int("followers", cfg.Followers).
			Int("write_quorum", cfg.WriteQuorum).
			Int("read_quorum", cfg.ReadQuorum).
			Msg("coordinator listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down coordinator")
	stopHealth()
	coord.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server shutdown error")
	}
}
