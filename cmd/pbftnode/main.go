// Command pbftnode runs one pBFT replica (plus a RAFT sibling for
// comparison) against a shared cluster directory file.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"pbftchain/internal/config"
	"pbftchain/internal/logging"
	"pbftchain/internal/statusfeed"
	"pbftchain/pbft"
	"pbftchain/raft"
	"pbftchain/transport"
)

var (
	configPath string
	nodeID     string
)

var rootCmd = &cobra.Command{
	Use:   "pbftnode",
	Short: "Run a pBFT replica",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the replica and block until interrupted",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to the cluster directory YAML file")
	serveCmd.Flags().StringVar(&nodeID, "id", "", "override the node_id in --config (lets one shared file serve every replica)")
	_ = serveCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if nodeID != "" {
		cfg.NodeID = nodeID
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})
	logger := logging.Named("pbftnode")

	peers := make([]transport.PeerInfo, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers = append(peers, transport.PeerInfo{ID: p.ID, Address: p.Address})
	}
	dir := transport.NewDirectory(cfg.NodeID, peers)

	node := pbft.NewNode(pbft.Config{
		ID:          cfg.NodeID,
		PrimaryID:   cfg.PrimaryID,
		ClusterSize: len(cfg.Peers),
		Transport:   dir,
	})

	raftNode := raft.NewNode(raft.Config{
		ID:          cfg.NodeID,
		ClusterSize: len(cfg.Peers),
		Transport:   dir,
		ApplyFn: func(index int, command string) {
			logger.Infow("raft entry applied", "index", index, "command", command)
		},
	})
	raftNode.Start()

	if cfg.StatusAddr != "" {
		feed := statusfeed.NewFeed()
		node.OnStatusChange(func(status pbft.StatusReply) {
			feed.Push(statusfeed.Status{
				NodeID:        status.NodeID,
				View:          status.View,
				ChainHeight:   status.ChainHeight,
				MaliciousMode: status.MaliciousMode,
			})
		})
		mux := http.NewServeMux()
		mux.HandleFunc("/status", feed.Handler)
		go func() {
			if err := http.ListenAndServe(cfg.StatusAddr, mux); err != nil {
				logger.Warnw("status feed server stopped", "err", err)
			}
		}()
		logger.Infow("status feed listening", "address", cfg.StatusAddr)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, promhttp.Handler()); err != nil {
				logger.Warnw("metrics server stopped", "err", err)
			}
		}()
		logger.Infow("metrics listening", "address", cfg.MetricsAddr)
	}

	server := transport.NewServer(cfg.Listen)
	if err := server.RegisterName("PBFT", pbft.NewService(node)); err != nil {
		return fmt.Errorf("pbftnode: register PBFT service: %w", err)
	}
	if err := server.RegisterName("Raft", raft.NewService(raftNode)); err != nil {
		return fmt.Errorf("pbftnode: register Raft service: %w", err)
	}
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	logger.Infow("replica started", "node_id", cfg.NodeID, "listen", cfg.Listen, "is_primary", cfg.IsPrimary())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	logger.Infow("shutting down")
	raftNode.Stop()
	return nil
}
