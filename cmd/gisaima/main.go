package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmf-git/gisaima/server"
)

func main() {
	configPath := flag.String("config", "gisaima.toml", "path to the server configuration")
	defaultWorld := flag.String("world", "", "create and register a world with this id on startup")
	seed := flag.Int64("seed", 0, "seed for the world created with -world")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	uc, err := server.ReadConfig(*configPath)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}
	conf, err := uc.Config(log)
	if err != nil {
		log.Error("configure server", "err", err)
		os.Exit(1)
	}

	srv := conf.New()
	defer srv.Close()

	if err := srv.LoadWorlds(); err != nil {
		log.Error("load worlds", "err", err)
		os.Exit(1)
	}
	if *defaultWorld != "" {
		if _, err := srv.CreateWorld(*defaultWorld, *seed, 1); err != nil {
			log.Error("create world", "err", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv.Run(ctx)
	log.Info("server stopped")
}
