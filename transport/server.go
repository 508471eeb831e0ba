package transport

import (
	"fmt"
	"net"
	"net/rpc"

	"pbftchain/internal/logging"
)

// Server accepts inbound net/rpc connections and serves whatever
// services have been registered on it. One Server hosts both the pBFT
// and RAFT services for a node, each under its own RegisterName.
type Server struct {
	address  string
	listener net.Listener
	rpcServer *rpc.Server
}

// NewServer creates an RPC server bound to address once Start is
// called. Register services with RegisterName before calling Start.
func NewServer(address string) *Server {
	return &Server{
		address:   address,
		rpcServer: rpc.NewServer(),
	}
}

// RegisterName exposes service under name, the same way a client's
// serviceMethod string ("name.Method") addresses it.
func (s *Server) RegisterName(name string, service interface{}) error {
	return s.rpcServer.RegisterName(name, service)
}

// Start listens on s.address and serves connections until Stop is
// called. The accept loop ends at the first Accept error: Stop's Close
// produces one, and any other accept error ends the loop the same way.
func (s *Server) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.address, err)
	}

	logger := logging.Named("transport.server")
	logger.Infow("listening", "address", s.address)

	go func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return // listener closed by Stop
			}
			go s.rpcServer.ServeConn(conn)
		}
	}()
	return nil
}

// Stop closes the listener, unblocking the accept loop.
func (s *Server) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
