// Command rdt-sender drives one reliable file transfer to a single UDP
// peer: <prog> <peer-host> <peer-port> <file-path>.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aetherflow/rdt-sender/cmd/rdt-sender/config"
	"github.com/aetherflow/rdt-sender/internal/rdt/csvlog"
	"github.com/aetherflow/rdt-sender/internal/rdt/log"
	"github.com/aetherflow/rdt-sender/internal/rdt/sender"
	"github.com/aetherflow/rdt-sender/internal/rdt/telemetry"
	"github.com/aetherflow/rdt-sender/internal/rdt/transport"
)

var (
	configFile = flag.String("f", "", "optional YAML config file overriding tunable constants")
	devLog     = flag.Bool("dev", false, "use a development (console) logger instead of production JSON")
	version    = "0.1.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	if flag.NArg() != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <peer-host> <peer-port> <file-path>\n", os.Args[0])
		return 1
	}
	host := flag.Arg(0)
	portArg := flag.Arg(1)
	filePath := flag.Arg(2)

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdt-sender: load config: %v\n", err)
		return 1
	}

	logLevel := cfg.Log.Level
	if *devLog {
		cfg.Log.Dev = true
	}
	logger, err := log.New(logLevel, cfg.Log.Dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdt-sender: build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("starting rdt-sender",
		zap.String("version", version),
		zap.String("peer_host", host),
		zap.String("peer_port", portArg),
		zap.String("file", filePath),
	)

	port, err := strconv.Atoi(portArg)
	if err != nil {
		logger.Error("bad peer port", zap.String("port", portArg), zap.Error(err))
		return 1
	}

	conn, err := transport.Dial(host, port, nil)
	if err != nil {
		logger.Error("dial peer", zap.Error(err))
		return 1
	}

	file, err := os.Open(filePath)
	if err != nil {
		logger.Error("open input file", zap.String("path", filePath), zap.Error(err))
		conn.Close()
		return 1
	}

	var csvWriter *csvlog.Writer
	if cfg.CSV.Enable {
		csvWriter, err = csvlog.Open(cfg.CSV.Path)
		if err != nil {
			logger.Error("open csv log", zap.Error(err))
			file.Close()
			conn.Close()
			return 1
		}
	}

	tracer, err := telemetry.New(&cfg.Tracing, logger)
	if err != nil {
		logger.Error("init telemetry", zap.Error(err))
		file.Close()
		conn.Close()
		return 1
	}

	// The pacer smooths bursts in the Fill step; CWND admission already
	// bounds in-flight segments, so the limiter's burst matches the
	// largest window the controller can reach.
	pacer := rate.NewLimiter(rate.Limit(cfg.PacerRate), cfg.Window.MaxWindow)

	s, err := sender.New(conn, file, file.Close,
		sender.WithLogger(logger),
		sender.WithTracer(tracer),
		sender.WithCSV(csvWriter),
		sender.WithPacer(pacer),
		sender.WithFilePath(filePath),
		sender.WithWindowLimits(cfg.Window.InitialSSThresh, cfg.Window.MaxWindow),
		sender.WithRTOBounds(cfg.RTO.Initial, cfg.RTO.Min, cfg.RTO.Max),
	)
	if err != nil {
		logger.Error("construct sender", zap.Error(err))
		file.Close()
		conn.Close()
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := s.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
	if err := s.Close(); err != nil {
		logger.Warn("sender close", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("transfer failed", zap.Error(runErr))
		return 1
	}
	logger.Info("transfer succeeded")
	return 0
}
