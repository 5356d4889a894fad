package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/klvr/charger-tools/pkg/config"
	"github.com/klvr/charger-tools/pkg/models"
	"github.com/klvr/charger-tools/pkg/transport"
)

// Locator resolves target specifiers into verified chargers
type Locator struct {
	cfg    config.Config
	client *transport.Client
	logger *logrus.Logger
}

// NewLocator creates a locator using the given transport for
// verification probes
func NewLocator(cfg config.Config, client *transport.Client, logger *logrus.Logger) *Locator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Locator{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Resolve turns one explicit target (a dotted-quad IPv4, or an absolute
// URL for https tunnels) into a verified descriptor. A target that does
// not verify fails with DeviceUnreachableError.
func (l *Locator) Resolve(ctx context.Context, target string) (models.DeviceDescriptor, error) {
	candidate, err := parseTarget(target, l.cfg.DevicePort)
	if err != nil {
		return models.DeviceDescriptor{}, err
	}

	device, ok := l.Verify(ctx, candidate)
	if !ok {
		return models.DeviceDescriptor{}, &DeviceUnreachableError{Target: target}
	}
	return device, nil
}

// Verify probes a candidate's info endpoint and checks the reported
// name contains the product marker, case-insensitively. It is a
// predicate, not an error path: anything short of a verified charger
// (timeout, connection refused, non-200, bad JSON, wrong name) is
// simply "no".
func (l *Locator) Verify(ctx context.Context, candidate models.DeviceDescriptor) (models.DeviceDescriptor, bool) {
	resp, err := l.client.Do(ctx, candidate, http.MethodGet, transport.PathDeviceInfo, nil, nil)
	if err != nil {
		l.logger.Debugf("Probe %s: %v", candidate.BaseURL(), err)
		return candidate, false
	}
	if resp.StatusCode != http.StatusOK {
		l.logger.Debugf("Probe %s: status %d", candidate.BaseURL(), resp.StatusCode)
		return candidate, false
	}
	info, err := transport.ParseDeviceInfo(resp.Body)
	if err != nil {
		l.logger.Debugf("Probe %s: bad info JSON: %v", candidate.BaseURL(), err)
		return candidate, false
	}
	name := info.DisplayName()
	if name == "" || !strings.Contains(strings.ToLower(name), strings.ToLower(l.cfg.ProductMarker)) {
		l.logger.Debugf("Probe %s: name %q is not a %s", candidate.BaseURL(), name, l.cfg.ProductMarker)
		return candidate, false
	}

	candidate.Name = name
	candidate.FirmwareVersion = info.FirmwareVersion
	candidate.ID = info.Identifier()
	return candidate, true
}

// Discover listens for mDNS advertisements for the configured window,
// deduplicates by service instance name, then verifies each candidate.
// Verified devices come back in first-seen order.
func (l *Locator) Discover(ctx context.Context) ([]models.DeviceDescriptor, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("starting mDNS discovery: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, l.cfg.DiscoveryWindow)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(browseCtx, l.cfg.ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mDNS browse failed: %w", err)
	}

	seen := make(map[string]bool)
	var candidates []models.DeviceDescriptor
	for entry := range entries {
		if entry == nil {
			continue
		}
		if seen[entry.Instance] {
			continue
		}
		seen[entry.Instance] = true

		host := candidateAddress(entry)
		if host == "" {
			l.logger.Debugf("Advertisement %q carried no usable address", entry.Instance)
			continue
		}
		port := entry.Port
		if port == 0 {
			port = l.cfg.DevicePort
		}
		l.logger.Debugf("Advertisement %q at %s:%d", entry.Instance, host, port)
		candidates = append(candidates, models.DeviceDescriptor{
			Host:   host,
			Port:   port,
			Scheme: "http",
		})
	}

	var devices []models.DeviceDescriptor
	for _, candidate := range candidates {
		if device, ok := l.Verify(ctx, candidate); ok {
			devices = append(devices, device)
		}
	}
	if len(devices) == 0 {
		return nil, &NoDevicesFoundError{Window: l.cfg.DiscoveryWindow.String()}
	}
	return devices, nil
}

// candidateAddress prefers an advertised IPv4 literal, skipping the
// 0.0.0.0 placeholder some stacks announce, and falls back to the
// advertised hostname.
func candidateAddress(entry *zeroconf.ServiceEntry) string {
	for _, addr := range entry.AddrIPv4 {
		if addr.String() != "0.0.0.0" {
			return addr.String()
		}
	}
	return strings.TrimSuffix(entry.HostName, ".")
}

// parseTarget interprets a target specifier: a dotted-quad IPv4 literal
// gets the default port over http; an absolute URL keeps its scheme,
// host and port, which is how https tunnel targets arrive.
func parseTarget(target string, defaultPort int) (models.DeviceDescriptor, error) {
	if ip := net.ParseIP(target); ip != nil && ip.To4() != nil {
		return models.DeviceDescriptor{Host: target, Port: defaultPort, Scheme: "http"}, nil
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return models.DeviceDescriptor{}, fmt.Errorf("invalid target URL %q: %w", target, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return models.DeviceDescriptor{}, fmt.Errorf("unsupported target scheme %q", u.Scheme)
		}
		port := 80
		if u.Scheme == "https" {
			port = 443
		}
		if p := u.Port(); p != "" {
			port, err = strconv.Atoi(p)
			if err != nil {
				return models.DeviceDescriptor{}, fmt.Errorf("invalid port in target %q", target)
			}
		}
		return models.DeviceDescriptor{Host: u.Hostname(), Port: port, Scheme: u.Scheme}, nil
	}

	return models.DeviceDescriptor{}, fmt.Errorf("target %q is neither an IPv4 address nor a URL", target)
}
