package conn

import (
	"context"
	"net"

	"github.com/cogu/apx-go/internal/logger"
)

// Dial connects to a broker over network/address (e.g. "tcp",
// "host:port", or "unix", "/path/to/socket") and returns a client
// Connection ready for Run.
func Dial(ctx context.Context, network, address string, log logger.Logger, opts ...Option) (*Connection, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewClient(raw, log, opts...), nil
}
