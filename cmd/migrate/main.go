package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/db"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	cfg := config.Load()

	// Connect to database
	db.Connect(cfg.Database.DSN())
	defer db.Close()

	if cfg.Vector.Backend == "pgvector" {
		log.Println("Enabling pgvector extension...")
		if err := db.EnableVector(); err != nil {
			log.Fatalf("❌ Failed to enable pgvector: %v", err)
		}
	}

	// Run migrations
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Database migrations completed successfully!")
}
