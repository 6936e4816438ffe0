package main

import (
	"fmt"
	"os"

	"github.com/danmuck/probectl/internal/device"
	"github.com/danmuck/probectl/internal/logging"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "devicectl: %v\n", err)
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
	return device.NewServerWithConfig(cfg).Run()
}

func parseFlags(args []string) (device.ServerConfig, error) {
	flagSet := pflag.NewFlagSet("devicectl", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to device TOML config")
	listen := flagSet.String("listen", "", "router-facing listen address")
	scanDuration := flagSet.Duration("scan-duration", 0, "simulated scan length")
	replyDelay := flagSet.Duration("reply-delay", 0, "hold every reply back by this long")
	if err := flagSet.Parse(args); err != nil {
		return device.ServerConfig{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return device.ServerConfig{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg := device.DefaultServerConfig()
	if *configPath != "" {
		loaded, err := loadServerConfig(*configPath)
		if err != nil {
			return device.ServerConfig{}, err
		}
		cfg = loaded
	}
	if flagSet.Changed("listen") {
		cfg.ListenAddr = *listen
	}
	if flagSet.Changed("scan-duration") {
		cfg.ScanDuration = *scanDuration
	}
	if flagSet.Changed("reply-delay") {
		cfg.ReplyDelay = *replyDelay
	}
	return cfg, nil
}
