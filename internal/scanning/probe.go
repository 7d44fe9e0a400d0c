package scanning

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/anstrom/bannerscan/internal/logging"
)

// Dialer opens TCP connections. *net.Dialer satisfies it; tests inject
// dialers that redirect well-known ports to local listeners.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober performs single timeout-bounded TCP probes.
type Prober struct {
	dialer     Dialer
	bannerSize int
	logger     *logging.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithDialer replaces the default net.Dialer.
func WithDialer(d Dialer) ProberOption {
	return func(p *Prober) {
		p.dialer = d
	}
}

// WithBannerSize sets how many bytes are read from an open port.
func WithBannerSize(n int) ProberOption {
	return func(p *Prober) {
		if n > 0 {
			p.bannerSize = n
		}
	}
}

// WithProberLogger sets the logger used for per-probe debug output.
func WithProberLogger(l *logging.Logger) ProberOption {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProber creates a prober with keep-alives disabled on the default dialer.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		dialer:     &net.Dialer{KeepAlive: -1},
		bannerSize: DefaultBannerSize,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe connects to host:port, optionally nudges HTTP, reads a banner and
// classifies the outcome. Connect, write and read share one deadline of
// start+timeout. Probe never panics and never returns more than one status.
func (p *Prober) Probe(ctx context.Context, host string, port uint16, timeout time.Duration) (result PortResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = errorResult(host, port, &ScanError{Op: "probe", Host: host, Port: port, Err: fmt.Errorf("panic: %v", r)})
		}
		result.Duration = time.Since(start)
		p.logger.Debug("Probe finished",
			"target", host,
			"port", port,
			"status", result.Status,
			"duration", result.Duration)
	}()

	deadline := start.Add(timeout)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := p.dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errorResult(host, port, &ScanError{Op: "connect", Host: host, Port: port, Err: ctxErr})
		}
		if isClosedErr(err) {
			return closedResult(host, port)
		}
		return errorResult(host, port, &ScanError{Op: "connect", Host: host, Port: port, Err: err})
	}
	defer conn.Close()

	banner, err := p.grabBanner(conn, port, deadline)
	if err != nil {
		return errorResult(host, port, &ScanError{Op: "banner", Host: host, Port: port, Err: err})
	}
	return openResult(host, port, banner)
}

// grabBanner writes the port's probe payload, if any, then performs a single
// bounded read. A timeout or EOF yields an empty banner, not an error.
func (p *Prober) grabBanner(conn net.Conn, port uint16, deadline time.Time) (string, error) {
	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	if payload := probePayload(port); payload != nil {
		if _, err := conn.Write(payload); err != nil {
			if isTimeout(err) {
				return "", nil
			}
			return "", fmt.Errorf("write probe: %w", err)
		}
	}

	buf := make([]byte, p.bannerSize)
	n, err := conn.Read(buf)
	if n > 0 {
		return DecodeBanner(buf[:n]), nil
	}
	if err == nil || stderrors.Is(err, io.EOF) || isTimeout(err) {
		return "", nil
	}
	return "", fmt.Errorf("read: %w", err)
}

// closedErrnos are dial failures that mean "nothing reachable is listening".
var closedErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
	syscall.ETIMEDOUT,
}

// isClosedErr reports whether a dial error classifies the port as closed.
// Name resolution failures are not closed ports; they surface as errors.
func isClosedErr(err error) bool {
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return false
	}
	if isTimeout(err) {
		return true
	}
	for _, errno := range closedErrnos {
		if stderrors.Is(err, errno) {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}
