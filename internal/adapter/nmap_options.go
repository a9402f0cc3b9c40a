package adapter

import (
	"time"

	"go.uber.org/zap"
)

// NmapOption is a functional option for configuring NmapProbe
type NmapOption func(*NmapProbe)

// WithProbeTimeout bounds a single probe
func WithProbeTimeout(d time.Duration) NmapOption {
	return func(p *NmapProbe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProbePorts requires one of the ports to be open.
// Format: "80,443,8080" or "1-1000" or "22,80-443,8080". Invalid lists are ignored.
func WithProbePorts(ports string) NmapOption {
	return func(p *NmapProbe) {
		if validated, err := parsePorts(ports); err == nil {
			p.ports = validated
		}
	}
}

// WithSkipHostDiscovery treats hosts as online without pinging (-Pn).
// Useful for elements behind firewalls that drop ICMP.
func WithSkipHostDiscovery(skip bool) NmapOption {
	return func(p *NmapProbe) {
		p.skipHostDiscovery = skip
	}
}

// WithBinaryPath sets the nmap binary location
func WithBinaryPath(path string) NmapOption {
	return func(p *NmapProbe) {
		p.binaryPath = path
	}
}

// WithProbeLogger sets the logger
func WithProbeLogger(l *zap.Logger) NmapOption {
	return func(p *NmapProbe) {
		if l != nil {
			p.logger = l
		}
	}
}
