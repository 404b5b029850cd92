// cmd/registry is the cluster's membership oracle. Nodes heartbeat into it;
// it marks silent nodes dead, notifies the coordinator, triggers catch-up
// for new followers, and can auto-request respawn of dead followers:
//
//	./registry --port 9000 --coordinator http://localhost:7000 \
//	           --auto-spawn --spawn-delay 3s
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
	"replicated-kvstore/internal/registry"
)

func main() {
	port := flag.Int("port", 9000, "Listen port")
	coordinatorURL := flag.String("coordinator", "http://localhost:7000", "Coordinator base URL")
	expiry := flag.Duration("expiry", 5*time.Second, "Heartbeat silence before a node is declared dead")
	autoSpawn := flag.Bool("auto-spawn", false, "Request respawn of dead followers")
	spawnDelay := flag.Duration("spawn-delay", 3*time.Second, "Delay before an auto-spawn request")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	reg := registry.New(registry.Config{
		Port:           *port,
		CoordinatorURL: *coordinatorURL,
		Expiry:         *expiry,
		AutoSpawn:      *autoSpawn,
		SpawnDelay:     *spawnDelay,
	}, log)

	prunerCtx, stopPruner := context.WithCancel(context.Background())
	go reg.RunPruner(prunerCtx)

	router := api.NewRouter(log.With().Str("component", "http").Logger())
	registry.NewHandler(reg).Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Bool("auto_spawn", *autoSpawn).Msg("registry listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down registry")
	stopPruner()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server shutdown error")
	}
}
