// cmd/kvctl is the operator CLI, built with Cobra.
//
// Usage:
//
//	kvctl write mykey "hello"      --coordinator http://localhost:7000
//	kvctl read mykey
//	kvctl status
//	kvctl spawn
//	kvctl spawn --node-id follower-2 --port 7003
//	kvctl kill follower-1
//	kvctl nodes                    --registry http://localhost:9000
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"replicated-kvstore/internal/client"
)

var (
	coordinatorAddr string
	registryAddr    string
	timeout         time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "kvctl",
		Short: "Operator CLI for the replicated KV cluster",
	}

	root.PersistentFlags().StringVar(&coordinatorAddr, "coordinator",
		"http://localhost:7000", "Coordinator address")
	root.PersistentFlags().StringVar(&registryAddr, "registry",
		"http://localhost:9000", "Registry address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(writeCmd(), readCmd(), statusCmd(), spawnCmd(), killCmd(), nodesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── write ────────────────────────────────────────────────────────────────────

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <key> <value>",
		Short: "Store a key-value pair through the write quorum",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(coordinatorAddr, timeout)
			resp, err := c.Write(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

// ─── read ─────────────────────────────────────────────────────────────────────

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <key>",
		Short: "Read a value through the read quorum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(coordinatorAddr, timeout)
			resp, err := c.Read(context.Background(), args[0])
			if err == client.ErrNotFound {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

// ─── status ───────────────────────────────────────────────────────────────────

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show leader, followers, and quorum state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(coordinatorAddr, timeout)
			body, err := c.GetRaw(context.Background(), "/status")
			if err != nil {
				return err
			}
			fmt.Println(body)
			return nil
		},
	}
}

// ─── spawn / kill ─────────────────────────────────────────────────────────────

func spawnCmd() *cobra.Command {
	var nodeID string
	var port int

	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Start a follower (reusing the oldest dead slot when present)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(coordinatorAddr, timeout)
			resp, err := c.Spawn(context.Background(), nodeID, port)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeID, "node-id", "", "Pin the spawn to a slot id")
	cmd.Flags().IntVar(&port, "port", 0, "Pin the spawn to a port")
	return cmd
}

func killCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <node-id>",
		Short: "Terminate a follower process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(coordinatorAddr, timeout)
			resp, err := c.Kill(context.Background(), args[0])
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

// ─── nodes ────────────────────────────────────────────────────────────────────

func nodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List every node the registry has seen, with last-seen ages",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(registryAddr, timeout)
			body, err := c.GetRaw(context.Background(), "/nodes")
			if err != nil {
				return err
			}
			fmt.Println(body)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
