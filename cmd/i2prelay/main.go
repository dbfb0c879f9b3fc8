package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"i2prelay/internal/app"
	"i2prelay/internal/i2pd"
	"i2prelay/internal/shared/config"
	"i2prelay/internal/shared/logger"
	"i2prelay/internal/shared/types"
	"i2prelay/outproxy/bench"
	"i2prelay/outproxy/discovery"
	"i2prelay/outproxy/router"
	"i2prelay/outproxy/selector"
	"i2prelay/outproxy/storage"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "i2prelay.ini")

	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	native := i2pd.NewService(i2pd.NewProcessBinding(cfg.I2PDConf), cfg.I2PDConf)
	defer native.Close()

	fetchTimeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	sources := []discovery.Source{
		discovery.NewOutproxysSource(cfg.DirectoryURL, cfg.HTTPProxyAddr, fetchTimeout),
	}
	if cfg.ExtraDirectoryURL != "" {
		sources = append(sources, discovery.NewNotbobSource(cfg.ExtraDirectoryURL, cfg.HTTPProxyAddr, fetchTimeout))
	}

	var store storage.Store
	if cfg.StoragePath != "" {
		store = storage.NewFileStore(cfg.StoragePath)
	}

	disc := discovery.NewManager(store, sources...)
	if err := disc.LoadPersisted(); err != nil {
		logger.Warn().Err(err).Msg("Failed to load persisted records, starting empty.")
	}

	prober := bench.New(cfg.OutproxyConf)
	sel := selector.New(prober, time.Duration(cfg.RetestIntervalSecs)*time.Second)
	rtr := router.New(sel, native, cfg.OutproxyConf)

	server := app.New(cfg, disc, sel, rtr)
	if err := server.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Server exited with error.")
	}
}
