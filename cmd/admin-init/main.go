// admin-init creates an administrator account for the fee ledger API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"feeledger/internal/auth"
	"feeledger/internal/cli"
	"feeledger/internal/config"
	"feeledger/internal/log"
)

func main() {
	username := flag.String("username", "", "administrator username")
	password := flag.String("password", "", "administrator password (or ADMIN_PASSWORD)")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).ValidateServer)
	logger := cli.SetupLogger(cfg, "admin-init").WithComponent(log.ComponentAuth)

	if *password == "" {
		*password = os.Getenv("ADMIN_PASSWORD")
	}
	if strings.TrimSpace(*username) == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: admin-init -username NAME [-password SECRET]")
		os.Exit(2)
	}

	if cfg.DataBackend == "memory" {
		logger.Error("admin-init needs a persistent backend; set DATA_BACKEND to sqlite or postgres")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := cli.OpenBackend(ctx, logger, cfg)
	defer store.Close()

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("Failed to create token issuer", log.FieldError, err)
		os.Exit(1)
	}

	if err := auth.NewService(store.Stores, issuer).CreateAdmin(ctx, *username, *password); err != nil {
		logger.Error("Failed to create administrator", log.FieldError, err, "username", *username)
		store.Close()
		os.Exit(1)
	}
	logger.Info("Administrator created", "username", *username, "backend", cfg.DataBackend)
}
