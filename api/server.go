package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

const aaNamespace = "aa"

// NewRPCServer registers the validator API under the `aa` namespace.
func NewRPCServer(logger zerolog.Logger, userOpAPI *UserOpAPI) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(aaNamespace, userOpAPI); err != nil {
		return nil, fmt.Errorf("failed to register %s namespace: %w", aaNamespace, err)
	}
	return server, nil
}

// NewHTTPServer wraps the RPC server for serving over HTTP.
func NewHTTPServer(logger zerolog.Logger, server *rpc.Server, host string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
