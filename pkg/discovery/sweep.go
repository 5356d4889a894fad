package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/klvr/charger-tools/pkg/models"
)

// Sweep probes every host in a CIDR range on the device port and
// returns the verified chargers. Probes run concurrently up to the
// configured cap; each probe has its own transport timeout, so one
// stalled host never blocks the rest. The mDNS path is preferred;
// this exists for networks that filter multicast.
func (l *Locator) Sweep(ctx context.Context, cidr string) ([]models.DeviceDescriptor, error) {
	ips, err := parseIPRange(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep range: %w", err)
	}

	l.logger.Infof("Sweeping %d addresses in %s", len(ips), cidr)

	var wg sync.WaitGroup
	deviceChan := make(chan models.DeviceDescriptor, len(ips))
	semaphore := make(chan struct{}, l.cfg.SweepConcurrency)

	for _, ip := range ips {
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				return
			}
			candidate := models.DeviceDescriptor{
				Host:   ip,
				Port:   l.cfg.DevicePort,
				Scheme: "http",
			}
			if device, ok := l.Verify(ctx, candidate); ok {
				deviceChan <- device
			}
		}(ip)
	}

	wg.Wait()
	close(deviceChan)

	var devices []models.DeviceDescriptor
	for device := range deviceChan {
		devices = append(devices, device)
	}
	// Completion order depends on probe latency; sort for a stable report.
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Host < devices[j].Host
	})
	return devices, nil
}

// parseIPRange expands a CIDR into individual addresses, dropping the
// network and broadcast addresses.
func parseIPRange(cidr string) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}

	var ips []string
	for ip := ip.Mask(ipnet.Mask); ipnet.Contains(ip); inc(ip) {
		ips = append(ips, ip.String())
	}

	if len(ips) > 2 {
		ips = ips[1 : len(ips)-1]
	}

	return ips, nil
}

// inc increments an IP address
func inc(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}
