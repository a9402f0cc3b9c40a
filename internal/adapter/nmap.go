package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"go.uber.org/zap"
)

// NmapProbe checks element reachability with nmap before a cycle.
// With ports configured it requires at least one open port; otherwise a
// ping scan decides.
type NmapProbe struct {
	timeout           time.Duration
	ports             string
	skipHostDiscovery bool
	binaryPath        string
	logger            *zap.Logger
}

// NewNmapProbe creates a probe with the given options
func NewNmapProbe(opts ...NmapOption) *NmapProbe {
	p := &NmapProbe{
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reachable implements Probe. An empty host is not probed.
func (p *NmapProbe) Reachable(ctx context.Context, host string) bool {
	if host == "" {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	scanner, err := nmap.NewScanner(ctx, p.scanOptions(host)...)
	if err != nil {
		p.logger.Warn("nmap scanner unavailable", zap.String("host", host), zap.Error(err))
		return false
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		p.logger.Warn("nmap probe failed", zap.String("host", host), zap.Error(err))
		return false
	}
	if warnings != nil && len(*warnings) > 0 {
		p.logger.Debug("nmap warnings", zap.String("host", host), zap.Strings("warnings", *warnings))
	}

	up := hostUp(result, p.ports != "")
	if !up {
		p.logger.Info("element unreachable", zap.String("host", host))
	}
	return up
}

func (p *NmapProbe) scanOptions(host string) []nmap.Option {
	opts := []nmap.Option{nmap.WithTargets(host)}
	if p.ports != "" {
		opts = append(opts, nmap.WithPorts(p.ports))
	} else {
		opts = append(opts, nmap.WithPingScan())
	}
	if p.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}
	if p.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(p.binaryPath))
	}
	return opts
}

// hostUp reports whether any scanned host is up, and when requireOpen is
// set, whether it exposes an open port
func hostUp(result *nmap.Run, requireOpen bool) bool {
	if result == nil {
		return false
	}
	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}
		if !requireOpen {
			return true
		}
		for _, port := range host.Ports {
			if port.State.State == "open" {
				return true
			}
		}
	}
	return false
}

// parsePorts validates a port list such as "80,443" or "22,8000-8100"
func parsePorts(portRange string) (string, error) {
	parts := strings.Split(portRange, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return "", fmt.Errorf("invalid port range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil || start < 1 || start > 65535 {
				return "", fmt.Errorf("invalid port number: %s", rangeParts[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil || end < 1 || end > 65535 || end < start {
				return "", fmt.Errorf("invalid port number: %s", rangeParts[1])
			}
		} else {
			port, err := strconv.Atoi(part)
			if err != nil || port < 1 || port > 65535 {
				return "", fmt.Errorf("invalid port number: %s", part)
			}
		}
	}
	return portRange, nil
}
