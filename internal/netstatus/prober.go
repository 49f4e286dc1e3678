package netstatus

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"
)

const (
	// DefaultProbeInterval is how often the host is dialled.
	DefaultProbeInterval = 15 * time.Second

	// DefaultProbeTimeout bounds a single dial.
	DefaultProbeTimeout = 3 * time.Second
)

// ProberConfig configures a Prober.
type ProberConfig struct {
	// Addr is the host:port dialled to decide connectivity.
	Addr string

	Interval time.Duration
	Timeout  time.Duration
}

// DialFunc opens a connection, like net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn,
	error)

// Prober is a Monitor that dials a TCP address on a fixed interval.
type Prober struct {
	broadcaster

	cfg  ProberConfig
	dial DialFunc
	log  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProber creates a prober. It reports offline until the first probe
// ran; Start runs that probe before returning. A nil dial uses a
// net.Dialer.
func NewProber(cfg ProberConfig, dial DialFunc, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbeTimeout
	}
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}

	return &Prober{
		cfg:  cfg,
		dial: dial,
		log:  log.With("component", "netstatus", "addr", cfg.Addr),
	}
}

// Start probes once and then keeps probing in the background until Stop
// or ctx ends.
func (p *Prober) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.probe(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.probe(ctx)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends probing and waits for the loop to exit.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Prober) probe(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", p.cfg.Addr)
	if err == nil {
		_ = conn.Close()
	}
	if ctx.Err() != nil {
		return
	}

	online := err == nil
	if p.set(online) {
		if online {
			p.log.InfoContext(ctx, "Cloud host reachable")
		} else {
			p.log.WarnContext(ctx, "Cloud host unreachable",
				"error", err)
		}
	}
}

// ProbeAddr derives the host:port to dial from a base URL, defaulting the
// port from the scheme.
func ProbeAddr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		default:
			return "", fmt.Errorf("url %q: no port for scheme %q",
				rawURL, u.Scheme)
		}
	}

	return net.JoinHostPort(u.Hostname(), port), nil
}

var _ Monitor = (*Prober)(nil)
