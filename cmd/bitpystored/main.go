// Command bitpystored runs the BitPyStore TCP server: it opens an
// engine.Engine against a configured log file and serves the §6.3 line
// protocol over TCP until SHUTDOWN or a termination signal.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/bitpystore/bitpystore/internal/config"
	"github.com/bitpystore/bitpystore/internal/engine"
	"github.com/bitpystore/bitpystore/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr *os.File) int {
	logger := log.New(stderr, "bitpystored: ", log.LstdFlags)

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	eng, err := engine.Open(engine.Options{Path: cfg.Path, CacheCapacity: cfg.CacheCapacity})
	if err != nil {
		logger.Printf("open engine: %v", err)
		return 1
	}
	defer eng.Close()

	srv := server.New(cfg.ListenAddr, eng, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Printf("received shutdown signal")
		_ = srv.Close()
	}()

	if err := srv.Run(); err != nil {
		logger.Printf("server stopped: %v", err)
		return 1
	}

	logger.Printf("shut down cleanly")

	return 0
}

func parseFlags(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("bitpystored", flag.ContinueOnError)

	configPath := fs.StringP("config", "c", "", "path to a JSONC config file")
	path := fs.String("path", "", "path to the log file (overrides config)")
	cacheCapacity := fs.Int("cache-capacity", 0, "recency cache capacity (overrides config)")
	listenAddr := fs.String("listen", "", "TCP listen address (overrides config)")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.DefaultConfig()

	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return config.Config{}, err
		}

		cfg = loaded
	}

	if *path != "" {
		cfg.Path = *path
	}

	if *cacheCapacity != 0 {
		cfg.CacheCapacity = *cacheCapacity
	}

	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	return config.Validate(cfg)
}
