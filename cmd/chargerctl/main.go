package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/klvr/charger-tools/pkg/config"
	"github.com/klvr/charger-tools/pkg/discovery"
	"github.com/klvr/charger-tools/pkg/transport"
)

const (
	appName    = "chargerctl"
	appVersion = "1.0.0"
)

var (
	log = logrus.New()
	cfg = config.DefaultConfig()
)

func main() {
	app := &cli.App{
		Name:    appName,
		Usage:   "Discover KLVR Charger Pro devices and push signed firmware to them",
		Version: appVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"CHARGERCTL_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "firmware-dir",
				Aliases: []string{"d"},
				Usage:   "Directory containing signed firmware pairs",
				EnvVars: []string{"CHARGERCTL_FIRMWARE_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"CHARGERCTL_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				level = logrus.InfoLevel
			}
			log.SetLevel(level)
			log.SetFormatter(&logrus.TextFormatter{
				FullTimestamp:   true,
				TimestampFormat: "2006-01-02 15:04:05",
			})

			cfg, err = config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if dir := c.String("firmware-dir"); dir != "" {
				cfg.FirmwareDir = dir
			}
			return nil
		},
		Commands: []*cli.Command{
			commandDiscover(),
			commandInfo(),
			commandUpdate(),
			commandSimulate(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient() *transport.Client {
	return transport.NewClient(cfg.VerifyTimeout, log)
}

func newLocator() *discovery.Locator {
	return discovery.NewLocator(cfg, newClient(), log)
}
