package main

import (
	"context"
	"flag"
	"log"
	"time"

	"dm-chat-service/internal/config"
	"dm-chat-service/internal/database"
	"dm-chat-service/internal/models"
	"dm-chat-service/internal/repositories"
	"dm-chat-service/pkg/logger"
)

// Directory entries for local development. The ids follow the identity
// provider's subject format so tokens minted for them resolve to these rows.
var dummyUsers = []models.User{
	{ID: "auth0|dummy_alice", Email: "alice@example.com"},
	{ID: "auth0|dummy_bob", Email: "bob@example.com"},
}

func main() {
	unseed := flag.Bool("unseed", false, "remove the dummy users instead of creating them")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadDatabaseConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	appLogger := logger.New(logger.Options{Level: cfg.Log.Level, Development: !cfg.IsProduction()})
	defer appLogger.Sync()

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer database.Close(db)

	userRepo := repositories.NewUserRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *unseed {
		ids := make([]string, 0, len(dummyUsers))
		for _, u := range dummyUsers {
			ids = append(ids, u.ID)
		}
		removed, err := userRepo.DeleteByIDs(ctx, ids...)
		if err != nil {
			log.Fatal("Failed to remove dummy users: ", err)
		}
		appLogger.Info("Removed dummy users", "count", removed)
		return
	}

	appLogger.Info("Starting database seeding...")
	for i := range dummyUsers {
		u := dummyUsers[i]
		if err := userRepo.UpsertEmail(ctx, &u); err != nil {
			appLogger.Warn("Failed to seed user", "id", u.ID, "error", err)
			continue
		}
		appLogger.Info("Seeded user", "id", u.ID, "email", u.Email)
	}
	appLogger.Info("Database seeding completed successfully!")
}
