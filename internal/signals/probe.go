// Package signals adapts host environment events into the sources the
// coordinator listens to: an HTTP reachability probe for connectivity and
// OS signals for "application returned to the foreground".
package signals

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/initiative/internal/coordinator"
)

// DefaultProbeInterval is how often the probe checks the remote.
const DefaultProbeInterval = 10 * time.Second

// Probe decides connectivity by polling a URL. Any HTTP response below 500
// counts as reachable; transport errors and 5xx count as unreachable.
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
	state    *coordinator.Switch
}

var _ coordinator.Connectivity = (*Probe)(nil)

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithProbeInterval sets the polling period.
func WithProbeInterval(d time.Duration) ProbeOption {
	return func(p *Probe) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithProbeClient replaces the HTTP client.
func WithProbeClient(c *http.Client) ProbeOption {
	return func(p *Probe) {
		p.client = c
	}
}

// WithProbeLogger sets the logger.
func WithProbeLogger(l *slog.Logger) ProbeOption {
	return func(p *Probe) {
		p.logger = l
	}
}

// NewProbe creates a probe for url. It reports offline until the first
// successful check.
func NewProbe(url string, opts ...ProbeOption) *Probe {
	p := &Probe{
		url:      url,
		interval: DefaultProbeInterval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   slog.Default(),
		state:    coordinator.NewSwitch(false),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Online implements coordinator.Connectivity.
func (p *Probe) Online() bool {
	return p.state.Online()
}

// Changes implements coordinator.Connectivity.
func (p *Probe) Changes() <-chan bool {
	return p.state.Changes()
}

// Check polls the URL once and updates the state.
func (p *Probe) Check(ctx context.Context) bool {
	online := p.reachable(ctx)
	if online != p.state.Online() {
		p.logger.Info("remote reachability changed", "url", p.url, "online", online)
	}
	p.state.Set(online)
	return online
}

func (p *Probe) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Warn("probe request invalid", "url", p.url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.url, "error", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Run checks immediately and then every interval until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
