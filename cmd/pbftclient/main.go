// Command pbftclient is an interactive net/rpc client for a pBFT
// cluster: submit data, inspect each replica's chain and status, and
// flip a replica's fault-injection mode for testing.
package main

import (
	"bufio"
	"fmt"
	"net/rpc"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pbftchain/internal/config"
	"pbftchain/pbft"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pbftclient",
	Short: "Interactive client for a pBFT cluster",
	RunE:  runShell,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the cluster directory YAML file")
	_ = rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// shell holds one lazily-dialed net/rpc connection per node ID so
// repeated commands against the same node reuse the connection.
type shell struct {
	cfg     *config.NodeConfig
	clients map[string]*rpc.Client
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	s := &shell{cfg: cfg, clients: make(map[string]*rpc.Client)}
	defer s.closeAll()

	fmt.Println("pBFT client — type 'help' for commands, 'exit' to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		verb := parts[0]
		rest := parts[1:]

		switch verb {
		case "exit", "quit":
			return nil
		case "help":
			printHelp()
		case "primary":
			s.cmdPrimary()
		case "submit":
			s.cmdSubmit(rest)
		case "blockchain":
			s.cmdBlockchain(rest)
		case "status":
			s.cmdStatus(rest)
		case "malicious":
			s.cmdMode(rest, true)
		case "honest":
			s.cmdMode(rest, false)
		default:
			fmt.Printf("unknown command %q, type 'help'\n", verb)
		}
	}
	return nil
}

func printHelp() {
	fmt.Println(`commands:
  primary                        show which node is currently primary
  submit <data>                  submit data to the primary for consensus
  blockchain [node_index]        dump one node's chain (default 0)
  status [node_index]            show one node's view/height/mode (default: all)
  malicious <node_index> <mode>  set a node's fault-injection mode (honest|silent|wrong_hash)
  honest <node_index>            shorthand for 'malicious <node_index> honest'
  help                           show this text
  exit                           quit`)
}

// nodeByIndex maps a 0-based index into cfg.Peers, the ordering used
// throughout this shell's subcommands.
func (s *shell) nodeByIndex(idx string) (config.Peer, error) {
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= len(s.cfg.Peers) {
		return config.Peer{}, fmt.Errorf("invalid node index %q (have 0..%d)", idx, len(s.cfg.Peers)-1)
	}
	return s.cfg.Peers[i], nil
}

func (s *shell) dial(peer config.Peer) (*rpc.Client, error) {
	if c, ok := s.clients[peer.ID]; ok {
		return c, nil
	}
	c, err := rpc.Dial("tcp", peer.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s (%s): %w", peer.ID, peer.Address, err)
	}
	s.clients[peer.ID] = c
	return c, nil
}

func (s *shell) closeAll() {
	for _, c := range s.clients {
		c.Close()
	}
}

func (s *shell) cmdPrimary() {
	fmt.Printf("configured primary: %s\n", s.cfg.PrimaryID)
}

func (s *shell) cmdSubmit(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: submit <data>")
		return
	}
	data := strings.Join(args, " ")

	primaryPeer, ok := findPeer(s.cfg.Peers, s.cfg.PrimaryID)
	if !ok {
		fmt.Printf("configured primary %q is not in the peer list\n", s.cfg.PrimaryID)
		return
	}
	client, err := s.dial(primaryPeer)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	requestID := uuid.New().String()
	var reply pbft.SubmitReply
	if err := client.Call("PBFT.ClientSubmitBlock", pbft.SubmitArgs{Data: data, RequestID: requestID}, &reply); err != nil {
		fmt.Println("rpc error:", err)
		return
	}
	if !reply.Accepted {
		fmt.Printf("rejected: %s (primary_id=%s)\n", reply.Error, reply.PrimaryID)
		return
	}
	fmt.Printf("accepted at height %d (request_id=%s)\n", reply.BlockHeight, requestID)
}

func (s *shell) cmdBlockchain(args []string) {
	idx := "0"
	if len(args) > 0 {
		idx = args[0]
	}
	peer, err := s.nodeByIndex(idx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	client, err := s.dial(peer)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	var blocks []pbft.Block
	if err := client.Call("PBFT.GetBlockchain", pbft.Empty{}, &blocks); err != nil {
		fmt.Println("rpc error:", err)
		return
	}
	for _, b := range blocks {
		fmt.Printf("%d: hash=%s prev=%s data=%q seq=%d\n", b.BlockHeight, b.BlockHash, b.PreviousHash, b.Data, b.SequenceNumber)
	}
}

func (s *shell) cmdStatus(args []string) {
	indices := args
	if len(indices) == 0 {
		for i := range s.cfg.Peers {
			indices = append(indices, strconv.Itoa(i))
		}
	}
	for _, idx := range indices {
		peer, err := s.nodeByIndex(idx)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		client, err := s.dial(peer)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		var status pbft.StatusReply
		if err := client.Call("PBFT.GetStatus", pbft.Empty{}, &status); err != nil {
			fmt.Println("rpc error:", err)
			continue
		}
		fmt.Printf("%s: view=%d primary=%v height=%d mode=%s\n",
			status.NodeID, status.View, status.IsPrimary, status.ChainHeight, status.MaliciousMode)
	}
}

func (s *shell) cmdMode(args []string, takeModeArg bool) {
	if len(args) < 1 || (takeModeArg && len(args) < 2) {
		if takeModeArg {
			fmt.Println("usage: malicious <node_index> <mode>")
		} else {
			fmt.Println("usage: honest <node_index>")
		}
		return
	}
	peer, err := s.nodeByIndex(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	mode := string(pbft.ModeHonest)
	if takeModeArg {
		mode = args[1]
	}

	client, err := s.dial(peer)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	var ack pbft.Ack
	if err := client.Call("PBFT.SetMaliciousMode", pbft.MaliciousArgs{Mode: mode}, &ack); err != nil {
		fmt.Println("rpc error:", err)
		return
	}
	fmt.Printf("%s mode set to %s\n", peer.ID, mode)
}

func findPeer(peers []config.Peer, id string) (config.Peer, bool) {
	for _, p := range peers {
		if p.ID == id {
			return p, true
		}
	}
	return config.Peer{}, false
}
