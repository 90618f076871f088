package main

import (
	"log"

	"dm-chat-service/internal/config"
	"dm-chat-service/internal/database"
	"dm-chat-service/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadDatabaseConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	appLogger := logger.New(logger.Options{Level: cfg.Log.Level, Development: !cfg.IsProduction()})
	defer appLogger.Sync()

	appLogger.Info("Starting database migration...", "driver", cfg.Database.Driver)

	// NewConnection migrates the users and messages tables
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to migrate database: ", err)
	}
	defer database.Close(db)

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database instance: ", err)
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatal("Failed to ping database: ", err)
	}

	appLogger.Info("Database migration completed successfully!")
}
