package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/marmos91/gofor/internal/logger"
	"github.com/marmos91/gofor/pkg/config"
	"github.com/marmos91/gofor/pkg/server"
	"github.com/spf13/pflag"
)

// Version is the gofor release reported by --version.
const Version = "0.0.5"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		os.Exit(runInit(os.Args[2:]))
	}
	os.Exit(run(os.Args[1:]))
}

// runInit implements `gofor init [--force] [--config path]`.
func runInit(args []string) int {
	flags := pflag.NewFlagSet("gofor init", pflag.ContinueOnError)
	force := flags.Bool("force", false, "Overwrite an existing configuration file")
	configPath := flags.String("config", "", "Where to write the file (default: "+config.GetDefaultConfigPath()+")")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.InitConfig(*force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", path)
	return 0
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("gofor", pflag.ContinueOnError)
	flags.StringP("fqdn", "f", config.DefaultFQDN, "Fully qualified domain name advertised in menus")
	flags.IntP("port", "p", config.DefaultGopherPort, "Port to listen on")
	flags.StringP("root", "r", config.DefaultRoot, "Document root")
	flags.BoolP("ipv4", "4", false, "Listen on IPv4 only")
	flags.BoolP("verbose", "v", false, "Log every request")
	flags.Bool("chroot", false, "chroot in to the document root")
	flags.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	flags.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.Bool("version", false, "Print version and exit")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gofor [flags]\n       gofor init [--force] [--config path]\n\n")
		flags.PrintDefaults()
	}
	return flags
}

func run(args []string) int {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if v, _ := flags.GetBool("version"); v {
		fmt.Printf("gofor %s\n", Version)
		return 0
	}

	configPath, _ := flags.GetString("config")
	cfg, err := config.LoadWithFlags(configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	gopherCfg := &cfg.Adapters.Gopher
	root, err := filepath.Abs(gopherCfg.Root)
	if err != nil {
		logger.Error("Invalid document root %s: %v", gopherCfg.Root, err)
		return 1
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	if gopherCfg.Chroot {
		if err := enterChroot(root); err != nil {
			logger.Error("Failed to chroot into %s: %v", root, err)
			return 1
		}
		logger.Info("Chroot success, new root: %s", root)
		gopherCfg.Root = "/"
	} else {
		gopherCfg.Root = root
	}

	logger.Info("gofor %s starting", Version)
	if configPath == "" && !config.ConfigExists() {
		logger.Info("No config file at %s, using defaults (run `gofor init` to create one)", config.GetDefaultConfigPath())
	}
	logger.Info("Log level: %s, format: %s", cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Document root: %s (chroot: %v)", root, gopherCfg.Chroot)

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		logger.Info("Metrics enabled on port %d", cfg.Server.Metrics.Port)
	}

	adapters, err := config.CreateAdapters(cfg, metricsResult.GopherMetrics)
	if err != nil {
		logger.Error("Failed to create adapters: %v", err)
		return 1
	}

	srv := server.New(cfg.Server.ShutdownTimeout)
	if metricsResult.Server != nil {
		srv.SetMetricsServer(metricsResult.Server)
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			logger.Error("Failed to add %s adapter: %v", a.Protocol(), err)
			return 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Serving %s on port %d. Press Ctrl+C to stop.", gopherCfg.FQDN, gopherCfg.Port)

	select {
	case sig := <-sigChan:
		logger.Info("Received %s, initiating graceful shutdown...", sig)
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error: %v", err)
			return 1
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			return 1
		}
		logger.Info("Server stopped")
	}

	return 0
}
