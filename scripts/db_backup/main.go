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
	out := flag.String("out", "campusfix-backup.json", "Dump file to write")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	// The job queue is not part of the dump.
	cfg.Jobs.Enabled = false
	cfg.MigrateOnStart = false

	be, err := backend.Open(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backup error: %v\n", err)
		os.Exit(1)
	}
	defer be.Close()

	dstFile, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backup error: %v\n", err)
		os.Exit(1)
	}
	defer dstFile.Close()

	n, err := backend.Export(ctx, be.Store, dstFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backup error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Backup completed: %d entries written to %s.\n", n, *out)
}
