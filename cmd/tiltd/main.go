package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/cometbft/cometbft/abci/server"

	"tiltpoker/internal/app"
)

type CLI struct {
	Home      string `help:"App home directory (state stored under <home>/app)" default:".tiltpoker"`
	Addr      string `help:"ABCI listen address" default:"tcp://127.0.0.1:26658"`
	Transport string `help:"ABCI transport (socket|grpc)" default:"socket"`
	Debug     bool   `help:"Enable debug logging"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tiltd"),
		kong.Description("Heads-up mental poker ABCI application"),
		kong.UsageOnError(),
	)

	if cli.Debug {
		log.SetLevel(log.DebugLevel)
	}

	a, err := app.New(cli.Home)
	if err != nil {
		log.Fatal("init app", "error", err)
	}

	srv, err := server.NewServer(cli.Addr, cli.Transport, a)
	if err != nil {
		log.Fatal("create abci server", "error", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatal("start abci server", "error", err)
	}
	defer func() { _ = srv.Stop() }()

	log.Info("tiltd listening", "addr", cli.Addr, "transport", cli.Transport, "home", cli.Home)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	ctx.Exit(0)
}
