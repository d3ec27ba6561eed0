// Command opsadmin provisions operator accounts for the ops API.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/persistence"
	"github.com/spec-kit/ticket-bot/internal/repository"
)

func main() {
	name := flag.String("name", "", "display name")
	login := flag.String("login", "", "login")
	password := flag.String("password", "", "initial password")
	role := flag.String("role", string(domain.OperatorRoleViewer), "ADMIN or VIEWER")
	flag.Parse()

	if *login == "" || *password == "" {
		log.Fatal("login and password are required")
	}
	operatorRole := domain.OperatorRole(*role)
	if operatorRole != domain.OperatorRoleAdmin && operatorRole != domain.OperatorRoleViewer {
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pg.Close()

	hash, err := auth.HashPassword(*password, cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	operator := &domain.Operator{
		ID:           uuid.NewString(),
		Name:         *name,
		Login:        *login,
		PasswordHash: hash,
		Role:         operatorRole,
		Active:       true,
	}
	if operator.Name == "" {
		operator.Name = *login
	}

	if err := repository.NewOperatorRepository(pg.PoolHandle()).Create(ctx, operator); err != nil {
		log.Fatalf("failed to create operator: %v", err)
	}
	log.Printf("operator %s created with id %s", operator.Login, operator.ID)
}
