// Package client fetches attestation documents from remote enclaves and verifies them.
package client

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/mdlayher/vsock"
)

// DefaultHostCID is the CID of the parent instance as seen from inside an enclave.
const DefaultHostCID = 3

// NewVsockHTTPClient creates an HTTP client for use inside an enclave. Every connection is dialed to the
// vsock client tunnel on cid:port, which reads the target address as the first line.
func NewVsockHTTPClient(cid, port uint32) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				vsockConn, err := vsock.Dial(cid, port, nil)
				if err != nil {
					return nil, fmt.Errorf("failed to dial vsock: %w", err)
				}
				_, err = vsockConn.Write([]byte(addr + "\n"))
				if err != nil {
					_ = vsockConn.Close()
					return nil, fmt.Errorf("failed to write to vsock: %w", err)
				}
				return vsockConn, nil
			},
		},
	}
}
