package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vsinha/forgetrace/pkg/infrastructure/config"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
	"github.com/vsinha/forgetrace/pkg/interfaces/cli/commands"
)

type command interface {
	Execute(ctx context.Context) error
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: forgetrace <command> [flags]

Commands:
  serve      run the REST API
  migrate    apply database migrations
  simulate   run one lot through every stage and print its trace

Run "forgetrace <command> -help" for the flags of a command.`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]

	// Command line flags
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var (
		tenant        = fs.Int64("tenant", 1, "Tenant to seed and simulate for")
		shopFile      = fs.String("shop", "", "Path to shop layout YAML file")
		heatsFile     = fs.String("heats", "", "Path to heats CSV file")
		resourcesFile = fs.String("resources", "", "Path to resources CSV file")
		outputDir     = fs.String("output", "", "Output directory for results (optional)")
		format        = fs.String("format", "text", "Output format: text, json, svg")
		pieces        = fs.Int64("pieces", 100, "Pieces forged by the simulated lot")
		quantity      = fs.String("quantity", "60", "Weight drawn from a weight-tracked heat")
		rejects       = fs.Int64("rejects", 2, "Pieces rejected at inspection")
		rework        = fs.Int64("rework", 3, "Pieces sent back for reinspection")
		verbose       = fs.Bool("verbose", false, "Enable verbose output")
		help          = fs.Bool("help", false, "Show help message")
	)
	_ = fs.Parse(os.Args[2:])

	cfg := commands.Config{
		Tenant:        *tenant,
		ShopFile:      *shopFile,
		HeatsFile:     *heatsFile,
		ResourcesFile: *resourcesFile,
		OutputDir:     *outputDir,
		Format:        *format,
		Pieces:        *pieces,
		Quantity:      *quantity,
		Rejects:       *rejects,
		Rework:        *rework,
		Verbose:       *verbose,
		Help:          *help,
	}

	app, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(app.Env)

	var cmd command
	switch name {
	case "serve":
		cmd = commands.NewServeCommand(cfg, app, log)
	case "migrate":
		cmd = commands.NewMigrateCommand(app, log)
	case "simulate":
		cmd = commands.NewSimulateCommand(cfg, log)
	default:
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
