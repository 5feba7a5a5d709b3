// migrate manages the database schema and bootstraps the first admin account.
//
//	migrate up | down | status
//	migrate create-admin --email admin@example.com --password secret123 --name "Site Admin"
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"magazine/internal/config"
	"magazine/internal/model"
	"magazine/internal/store"
	"magazine/internal/user"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var email, password, name string
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.StringVar(&email, "email", "", "admin e-mail (create-admin)")
	flagSet.StringVar(&password, "password", "", "admin password, 8 to 16 characters (create-admin)")
	flagSet.StringVar(&name, "name", "Administrator", "admin display name (create-admin)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("usage: migrate up|down|status|create-admin [flags]")
	}

	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = db.Close() }()

	switch cmd := flagSet.Arg(0); cmd {
	case "up":
		return store.Migrate(ctx, db.Client)
	case "down":
		return store.Rollback(ctx, db.Client)
	case "status":
		return store.MigrationStatus(ctx, db.Client)
	case "create-admin":
		svc := user.NewService(user.NewRepository(db.Client), nil, nil, nil, user.Options{})
		u, err := svc.CreateUser(ctx, "", user.CreateInput{
			FullName: name,
			Email:    email,
			Password: password,
			Role:     model.RoleAdmin,
		})
		if err != nil {
			return err
		}
		slog.Info("admin created", "id", u.ID, "email", u.Email)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
