package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/garnizeh/campusfix/internal/config"
	"github.com/garnizeh/campusfix/internal/repository/backend"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	in := flag.String("in", "campusfix-backup.json", "Dump file to read")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	cfg.Jobs.Enabled = false
	cfg.MigrateOnStart = true

	srcFile, err := os.Open(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}
	defer srcFile.Close()

	be, err := backend.Open(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}
	defer be.Close()

	n, err := backend.Import(ctx, be.Store, srcFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore error after %d entries: %v\n", n, err)
		os.Exit(1)
	}

	fmt.Printf("Restore completed: %d entries loaded from %s.\n", n, *in)
}
