package scanning

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anstrom/bannerscan/internal/logging"
)

// mapDialer sends selected ports to local listeners and everything else to
// an address known to refuse connections.
type mapDialer struct {
	routes   map[uint16]string
	fallback string
	inner    net.Dialer
}

func (d *mapDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	if target, ok := d.routes[uint16(port)]; ok {
		return d.inner.DialContext(ctx, network, target)
	}
	return d.inner.DialContext(ctx, network, d.fallback)
}

// dialFunc adapts a function to the Dialer interface.
type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// refusedAddr returns a loopback address nothing is listening on.
func refusedAddr(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// bannerServer accepts connections, writes greeting (if any) and holds the
// connection open until the test ends.
func bannerServer(t testing.TB, greeting string) (addr string, port uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			if greeting != "" {
				_, _ = conn.Write([]byte(greeting))
			}
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		<-done
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	tcpAddr := ln.Addr().(*net.TCPAddr)
	return tcpAddr.String(), uint16(tcpAddr.Port)
}

func quietProber(opts ...ProberOption) *Prober {
	return NewProber(append([]ProberOption{WithProberLogger(logging.NewNop())}, opts...)...)
}
