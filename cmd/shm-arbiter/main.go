// Command shm-arbiter runs the segment arbiter until it receives a quit
// request, SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/srediag/shm-arbiter/adapter"
	"github.com/srediag/shm-arbiter/internal/logger"
	"github.com/srediag/shm-arbiter/pkg/arbiter"
	"github.com/srediag/shm-arbiter/pkg/audit"
)

var (
	configPath    = flag.String("config", "", "YAML configuration file")
	address       = flag.String("address", "", "listening socket, '@name' for the abstract namespace (overrides config)")
	failFast      = flag.Bool("fail-fast", false, "stop on the first rejected request")
	adminAddr     = flag.String("admin", "", "serve /live, /ready and /metrics on this TCP address")
	logLevel      = flag.Int("log-level", logger.LevelInfo, "0=trace 1=debug 2=info 3=warn 4=error 5=none (default SHMARB_LOG_LEVEL, else info)")
	auditCapacity = flag.Int("audit-capacity", audit.DefaultCapacity, "audit events kept in memory")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shm-arbiter: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger.SetLogLevel(resolveLogLevel(flag.CommandLine, *logLevel, os.Getenv(logger.EnvLogLevel) != ""))
	log := logger.New("main", os.Stderr)
	defer func() { _ = log.Sync() }()

	conf := arbiter.DefaultConfig()
	if *configPath != "" {
		loaded, err := arbiter.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		conf = loaded
	}
	if *address != "" {
		conf.Address = *address
	}
	if *failFast {
		conf.FailFast = true
	}
	conf.LogOutput = os.Stderr

	trail := audit.NewLogger(*auditCapacity, os.Stderr)
	defer trail.Close()
	conf.Audit = trail

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	conf.Registerer = reg

	arb, err := arbiter.New(conf)
	if err != nil {
		return err
	}
	if err := arb.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *adminAddr != "" {
		srv := &http.Server{
			Addr:              *adminAddr,
			Handler:           adapter.NewAdminHandler(arb, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("admin server: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		log.Infof("admin endpoints on %s", *adminAddr)
	}

	return arb.Run(ctx)
}

// resolveLogLevel prefers an explicit -log-level, then the level already taken
// from the environment, then the flag default.
func resolveLogLevel(fs *flag.FlagSet, flagLevel int, fromEnv bool) int {
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "log-level" {
			explicit = true
		}
	})
	if explicit || !fromEnv {
		return flagLevel
	}
	return logger.LogLevel()
}
