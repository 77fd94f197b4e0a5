package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/itohio/insole/pkg/api"
	"github.com/itohio/insole/pkg/config"
	"github.com/itohio/insole/pkg/link"
	"github.com/itohio/insole/pkg/metrics"
	"github.com/itohio/insole/pkg/publish"
	"github.com/itohio/insole/pkg/reader"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		portFlag     = flag.String("p", "", "Serial port override, comma separated in priority order (e.g. COM6,COM3)")
		mockFlag     = flag.Bool("mock", false, "Use the simulated insole instead of a real link")
		levelFlag    = flag.String("level", "", "Log level override (debug, info, warn, error)")
		listenFlag   = flag.String("listen", "", "HTTP listen address override")
		simulateFlag = flag.Bool("simulate", false, "Serve simulated readings when no real data arrives in time")
		listFlag     = flag.Bool("list", false, "List serial ports and exit")
		saveFlag     = flag.Bool("save", false, "Write the effective configuration to -config and exit")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})

	if *listFlag {
		listPorts(logger)
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Fatal("failed to load configuration", "path", *configFlag, "err", err)
	}

	if *portFlag != "" {
		cfg.Transport.Kind = config.TransportSerial
		cfg.Transport.Serial.Ports = config.SplitList(*portFlag)
	}
	if *mockFlag {
		cfg.Transport.Kind = config.TransportMock
	}
	if *levelFlag != "" {
		cfg.Log.Level = *levelFlag
	}
	if *listenFlag != "" {
		cfg.HTTP.Listen = *listenFlag
	}
	if *simulateFlag {
		cfg.Simulation.Allow = true
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Fatal("invalid log level", "level", cfg.Log.Level, "err", err)
	}
	logger.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	if *saveFlag {
		if err := cfg.Save(*configFlag); err != nil {
			logger.Fatal("failed to save configuration", "path", *configFlag, "err", err)
		}
		logger.Info("configuration saved", "path", *configFlag)
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("stopped", "err", err)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *log.Logger) error {
	candidates, err := link.Candidates(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	supervisor := link.NewSupervisor(candidates, cfg.Transport.RetryInterval, logger.WithPrefix("link"), m)
	rd := reader.New(cfg, supervisor, m, logger.WithPrefix("reader"))

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if cfg.MQTT.Broker != "" {
		pub, err := publish.Connect(cfg.MQTT, logger.WithPrefix("mqtt"))
		if err != nil {
			return err
		}
		rd.OnPublish(pub.Enqueue)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rd.Run(ctx); err != nil {
			errs <- fmt.Errorf("reader: %w", err)
		}
	}()

	httpLog := logger.WithPrefix("http")
	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           api.New(rd, cfg.Simulation.WaitTimeout, cfg.Simulation.Allow, m.Handler(), httpLog).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		httpLog.Info("listening", "addr", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received interrupt, shutting down")
	case runErr = <-errs:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		httpLog.Warn("shutdown", "err", err)
	}

	wg.Wait()
	return runErr
}

func listPorts(logger *log.Logger) {
	ports, err := link.Ports()
	if err != nil {
		logger.Fatal("failed to list ports", "err", err)
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p.Description)
	}
}
