// cmd/node is a single replica process. One binary serves either role:
//
//	./node --port 7001 --id leader --role leader --registry http://localhost:9000
//	./node --port 7002 --id follower-1 --role follower \
//	       --leader-url http://localhost:7001 --registry http://localhost:9000
//
// The coordinator normally launches these itself; running one by hand is
// only needed for experiments.
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
	"replicated-kvstore/internal/node"
)

func main() {
	port := flag.Int("port", 7001, "Listen port")
	id := flag.String("id", cluster.LeaderID, "Unique node identifier")
	role := flag.String("role", "leader", "Node role: leader or follower")
	leaderURL := flag.String("leader-url", "", "Leader base URL (follower only)")
	registryURL := flag.String("registry", "http://localhost:9000", "Registry base URL")
	syncDelay := flag.Duration("sync-delay", 0, "Artificial delay before sync replication")
	asyncDelay := flag.Duration("async-delay", 0, "Artificial delay before async replication")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if *role != string(cluster.RoleLeader) && *role != string(cluster.RoleFollower) {
		log.Fatal().Str("role", *role).Msg("role must be leader or follower")
	}

	n := node.New(node.Config{
		ID:          *id,
		Role:        cluster.Role(*role),
		Port:        *port,
		LeaderURL:   *leaderURL,
		RegistryURL: *registryURL,
		SyncDelay:   *syncDelay,
		AsyncDelay:  *asyncDelay,
	}, log)

	router := api.NewRouter(log.With().Str("component", "http").Logger())
	node.NewHandler(n).Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	go n.RunHeartbeat(heartbeatCtx)

	go func() {
		log.Info().Str("node_id", *id).Str("role", *role).Int("port", *port).Msg("node listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Str("node_id", *id).Msg("shutting down")
	stopHeartbeat()
	n.Deregister()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server shutdown error")
	}
}
