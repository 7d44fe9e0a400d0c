// Package resolve looks up reverse DNS names for scan targets.
package resolve

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/anstrom/bannerscan/internal/logging"
)

const defaultTimeout = 2 * time.Second

// Resolver performs reverse lookups. A failed lookup yields an empty name.
type Resolver struct {
	server  string
	timeout time.Duration
	client  *dns.Client
	logger  *logging.Logger
}

// New creates a resolver. With an empty server the system resolver is used,
// otherwise PTR queries go directly to server (host:port).
func New(server string, timeout time.Duration, logger *logging.Logger) *Resolver {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		server:  server,
		timeout: timeout,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
		logger:  logger.WithComponent("resolve"),
	}
}

// Reverse returns the first PTR name for host without its trailing dot.
// Hosts that are not IP addresses return "".
func (r *Resolver) Reverse(ctx context.Context, host string) string {
	if net.ParseIP(host) == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		name string
		err  error
	)
	if r.server == "" {
		name, err = r.system(ctx, host)
	} else {
		name, err = r.query(ctx, host)
	}
	if err != nil {
		r.logger.Debug("Reverse lookup failed", "target", host, "error", err)
		return ""
	}
	return name
}

func (r *Resolver) system(ctx context.Context, host string) (string, error) {
	names, err := net.DefaultResolver.LookupAddr(ctx, host)
	if err != nil || len(names) == 0 {
		return "", err
	}
	return strings.TrimSuffix(names[0], "."), nil
}

func (r *Resolver) query(ctx context.Context, host string) (string, error) {
	arpa, err := dns.ReverseAddr(host)
	if err != nil {
		return "", err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return "", err
	}
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", nil
}
