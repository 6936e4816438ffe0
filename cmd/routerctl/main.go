package main

import (
	"fmt"
	"os"

	"github.com/danmuck/probectl/internal/logging"
	"github.com/danmuck/probectl/internal/router"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "routerctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	logging.ConfigureRuntime()
	svc, err := router.NewServiceWithConfig(cfg)
	if err != nil {
		return err
	}
	return svc.Run()
}

// parseFlags loads the optional config file, then applies flags set on
// the command line over it.
func parseFlags(args []string) (router.ServiceConfig, error) {
	flagSet := pflag.NewFlagSet("routerctl", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to router TOML config")
	listen := flagSet.String("listen", "", "client listen address")
	deviceAddr := flagSet.String("device", "", "device server address")
	gatewayTimeout := flagSet.Duration("gateway-timeout", 0, "bound on one forwarded device command")
	if err := flagSet.Parse(args); err != nil {
		return router.ServiceConfig{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return router.ServiceConfig{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg := router.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			return router.ServiceConfig{}, err
		}
		cfg = loaded
	}
	if flagSet.Changed("listen") {
		cfg.ListenAddr = *listen
	}
	if flagSet.Changed("device") {
		cfg.DeviceAddr = *deviceAddr
	}
	if flagSet.Changed("gateway-timeout") {
		cfg.GatewayTimeout = *gatewayTimeout
	}
	return cfg, nil
}
