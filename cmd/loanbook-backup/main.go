package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"loanbook/internal/backend"
	"loanbook/internal/backup"
	"loanbook/internal/cli"
	"loanbook/internal/services"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: loanbook-backup [-file path] export|import\n\n")
	fmt.Fprintf(os.Stderr, "Export writes the loan collection as %s, import replaces it.\n", backup.FileName)
	fmt.Fprintf(os.Stderr, "Use -file - for stdout/stdin.\n\n")
	flag.PrintDefaults()
}

func main() {
	file := flag.String("file", backup.FileName, "backup file path")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	cfg, logger := cli.Bootstrap()
	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	loans := services.NewLoanService(store.Store, nil, nil)

	switch flag.Arg(0) {
	case "export":
		err = export(ctx, loans, *file)
	case "import":
		err = restore(ctx, loans, *file)
	default:
		usage()
		store.Close()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Backup command failed", "command", flag.Arg(0), "error", err)
		store.Close()
		os.Exit(1)
	}
}

func export(ctx context.Context, loans *services.LoanService, path string) error {
	data, err := loans.Export(ctx)
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	fmt.Fprintf(os.Stderr, "exported to %s\n", path)
	return nil
}

func restore(ctx context.Context, loans *services.LoanService, path string) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	n, err := loans.Import(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "imported %d loans from %s\n", n, path)
	return nil
}
