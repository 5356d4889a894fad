package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/klvr/charger-tools/pkg/discovery"
	"github.com/klvr/charger-tools/pkg/firmware"
	"github.com/klvr/charger-tools/pkg/models"
	"github.com/klvr/charger-tools/pkg/simulator"
	"github.com/klvr/charger-tools/pkg/tunnel"
	"github.com/klvr/charger-tools/pkg/update"
)

func commandDiscover() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Find chargers on the local network",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "subnet",
				Usage: "Sweep a `CIDR` range instead of listening for mDNS (for networks that filter multicast)",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signalContext()
			defer stop()

			locator := newLocator()

			var devices []models.DeviceDescriptor
			var err error
			if subnet := c.String("subnet"); subnet != "" {
				devices, err = locator.Sweep(ctx, subnet)
				if err == nil && len(devices) == 0 {
					err = &discovery.NoDevicesFoundError{Window: subnet}
				}
			} else {
				log.Infof("Listening for charger advertisements for %s...", cfg.DiscoveryWindow)
				devices, err = locator.Discover(ctx)
			}
			if err != nil {
				return suggestManualTarget(err)
			}

			for _, device := range devices {
				color.Green("  %-30s %-18s firmware %s  [%s]", device.Name, device.Host, device.FirmwareVersion, device.ID)
			}
			fmt.Printf("\n%d charger(s) found\n", len(devices))
			return nil
		},
	}
}

func commandInfo() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show device info for one charger",
		ArgsUsage: "<ip-or-url>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: chargerctl info <ip-or-url>", 2)
			}
			ctx, stop := signalContext()
			defer stop()

			device, err := resolveTarget(ctx, newLocator(), c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			fmt.Printf("Name:      %s\n", device.Name)
			fmt.Printf("Address:   %s\n", device.BaseURL())
			fmt.Printf("Firmware:  %s\n", device.FirmwareVersion)
			fmt.Printf("Identity:  %s\n", device.ID)
			return nil
		},
	}
}

func commandUpdate() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Push a signed firmware pair to one or more chargers",
		Description: "With no arguments, discovers chargers and installs the newest firmware\n" +
			"pair from the firmware directory. Accepts an IP/URL target, an explicit\n" +
			"main+rear firmware file pair, or both.",
		ArgsUsage: "[main.signed.bin rear.signed.bin] [ip-or-url]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "firmware-version",
				Usage: "Install this exact `VERSION` from the firmware directory instead of the newest",
			},
			&cli.BoolFlag{
				Name:  "rear-only",
				Usage: "Flash only the rear board (reconcile a half-updated device)",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signalContext()
			defer stop()

			pair, target, err := parseUpdateArgs(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			locator := newLocator()
			var devices []models.DeviceDescriptor
			if target != "" {
				device, err := resolveTarget(ctx, locator, target)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				devices = []models.DeviceDescriptor{device}
			} else {
				log.Infof("Listening for charger advertisements for %s...", cfg.DiscoveryWindow)
				devices, err = locator.Discover(ctx)
				if err != nil {
					return suggestManualTarget(err)
				}
			}

			log.Infof("Installing v%s on %d device(s)", pair.Version, len(devices))

			orch := update.NewOrchestrator(cfg, newClient(), log)
			results, runErr := orch.UpdateAll(ctx, devices, pair, c.Bool("rear-only"))
			printReport(results)
			if runErr != nil {
				return cli.Exit(fmt.Sprintf("update run stopped: %v", runErr), 1)
			}
			for _, result := range results {
				if !result.Success {
					return cli.Exit("one or more devices failed to update", 1)
				}
			}
			return nil
		},
	}
}

func commandSimulate() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run a local fake charger for testing the update flow",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Value: 8000, Usage: "Listen `PORT`"},
			&cli.StringFlag{Name: "name", Value: "KLVR Charger Pro (sim)", Usage: "Reported device name"},
			&cli.StringFlag{Name: "firmware-version", Value: "1.0.0", Usage: "Reported firmware version"},
			&cli.StringFlag{Name: "next-version", Usage: "Version reported after a completed update"},
			&cli.StringFlag{Name: "serial", Value: "SIM-0001", Usage: "Reported serial number"},
		},
		Action: func(c *cli.Context) error {
			sim := simulator.New(simulator.Options{
				Name:            c.String("name"),
				SerialNumber:    c.String("serial"),
				FirmwareVersion: c.String("firmware-version"),
				NextVersion:     c.String("next-version"),
			}, log)
			return sim.Run(fmt.Sprintf(":%d", c.Int("port")))
		},
	}
}

// parseUpdateArgs maps the four CLI shapes onto (pair, target): nothing,
// a lone target, an explicit firmware pair, or a pair plus target.
func parseUpdateArgs(c *cli.Context) (models.FirmwarePair, string, error) {
	args := c.Args().Slice()
	scanner := firmware.NewScanner(cfg.FirmwareDir, log)

	selectPair := func() (models.FirmwarePair, error) {
		if v := c.String("firmware-version"); v != "" {
			return scanner.Select(strings.TrimPrefix(v, "v"))
		}
		pairs, err := scanner.Scan()
		if err != nil {
			return models.FirmwarePair{}, err
		}
		return pairs[0], nil
	}

	switch len(args) {
	case 0:
		pair, err := selectPair()
		return pair, "", err
	case 1:
		pair, err := selectPair()
		return pair, args[0], err
	case 2:
		pair, err := firmware.PairFromFiles(args[0], args[1])
		return pair, "", err
	case 3:
		pair, err := firmware.PairFromFiles(args[0], args[1])
		return pair, args[2], err
	default:
		return models.FirmwarePair{}, "", fmt.Errorf("too many arguments")
	}
}

// resolveTarget verifies one explicit target, retrying with backoff a
// few times since chargers drop off the network briefly around reboots.
// The state machine itself never retries; this wrapper is the only
// retry in the tool.
func resolveTarget(ctx context.Context, locator *discovery.Locator, target string) (models.DeviceDescriptor, error) {
	target = tunnelForTarget(ctx, locator, target)

	return retry.DoWithData(func() (models.DeviceDescriptor, error) {
		return locator.Resolve(ctx, target)
	}, retry.Attempts(3), retry.Delay(2*time.Second), retry.MaxDelay(5*time.Second))
}

// tunnelForTarget swaps an IP target for a cached live tunnel URL when
// one exists. Dead or expired tunnels are evicted on the spot.
func tunnelForTarget(ctx context.Context, locator *discovery.Locator, target string) string {
	cache, err := tunnel.Open(cfg.TunnelCachePath, cfg.TunnelCacheTTL)
	if err != nil {
		log.Debugf("Tunnel cache unavailable: %v", err)
		return target
	}
	url, ok := cache.Lookup(target, time.Now())
	if !ok {
		return target
	}

	if _, err := locator.Resolve(ctx, url); err == nil {
		log.Infof("Using cached tunnel %s for %s", url, target)
		return url
	}
	log.Infof("Cached tunnel %s for %s is dead, using the address directly", url, target)
	cache.Evict(target)
	if err := cache.Save(); err != nil {
		log.Debugf("Saving tunnel cache: %v", err)
	}
	return target
}

func printReport(results []models.UpdateResult) {
	fmt.Println("\n=== Update Report ===")
	for _, result := range results {
		if result.Success {
			color.Green("  %-20s OK      %s -> %s", result.Device, result.PreviousVersion, result.NewVersion)
		} else {
			color.Red("  %-20s FAILED  (was %s, target %s): %s",
				result.Device, result.PreviousVersion, result.TargetVersion, result.FailureReason)
		}
	}
}

func suggestManualTarget(err error) error {
	var notFound *discovery.NoDevicesFoundError
	if errors.As(err, &notFound) {
		color.Yellow("%v", err)
		color.Yellow("Try targeting the charger directly: chargerctl update <device-ip>")
		return cli.Exit("", 1)
	}
	return cli.Exit(err.Error(), 1)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
