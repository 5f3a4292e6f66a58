package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/eddielth/vbox-mqtt/bridge"
	"github.com/eddielth/vbox-mqtt/config"
	"github.com/eddielth/vbox-mqtt/filter"
	"github.com/eddielth/vbox-mqtt/logger"
	"github.com/eddielth/vbox-mqtt/metrics"
	"github.com/eddielth/vbox-mqtt/mqtt"
	"github.com/eddielth/vbox-mqtt/vbox"
)

var version = "dev"

func main() {
	flags := pflag.NewFlagSet("vbox-mqtt", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "config.yaml", "path to the YAML config file")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("metrics-listen", "", "address for the Prometheus endpoint, e.g. :9101")
	showVersion := flags.Bool("version", false, "print version and exit")
	flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println("vbox-mqtt", version)
		return
	}

	if err := config.BindFlags(flags); err != nil {
		log.Fatalf("failed to bind flags: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.InitFromConfig(cfg.Logger.Level, cfg.Logger.FilePath, cfg.Logger.MaxSize, cfg.Logger.MaxBackups, cfg.Logger.Console); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Close()

	vmFilter, err := filter.New(cfg.Filter)
	if err != nil {
		log.Fatalf("failed to load VM filter: %v", err)
	}

	client, err := mqtt.NewClient(cfg.MQTT, cfg.Discovery.AvailabilityTopic())
	if err != nil {
		log.Fatalf("failed to initialize MQTT client: %v", err)
	}

	manager := vbox.NewManager(vbox.NewExecRunner(cfg.VBox))
	b := bridge.New(cfg, client, manager, vmFilter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics); err != nil {
			logger.Error("metrics endpoint stopped: %v", err)
		}
	}()

	if _, err := os.Stat(*configPath); err == nil {
		err = config.WatchConfig(*configPath, func(newCfg *config.Config) error {
			if err := logger.SetLevel(newCfg.Logger.Level); err != nil {
				return err
			}
			if err := vmFilter.Reload(newCfg.Filter); err != nil {
				return err
			}
			b.Rediscover()
			logger.Info("MQTT, VBoxManage and poll changes take effect after restart")
			return nil
		})
		if err != nil {
			logger.Warn("failed to watch config file: %v", err)
		}
	}

	b.Start()
	logger.Info("vbox-mqtt %s started, polling every %s", version, cfg.Poll.Interval)

	if err := b.Run(ctx); err != nil {
		logger.Error("bridge stopped: %v", err)
	}

	b.Stop()
	logger.Info("vbox-mqtt stopped")
}
