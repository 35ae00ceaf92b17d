package db

import (
	"fmt"
	"log"

	"github.com/regcheck/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect initializes the database connection
func Connect(dsn string) {
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})

	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	log.Println("✅ Database connected successfully")
}

// EnableVector installs the pgvector extension used by the embedding columns
func EnableVector() error {
	if err := DB.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("enable pgvector extension: %w", err)
	}
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	if err := EnableVector(); err != nil {
		log.Printf("pgvector setup failed: %v", err)
		return err
	}
	log.Println("✅ pgvector extension enabled")

	tables := []struct {
		name  string
		model interface{}
	}{
		{"User", &models.User{}},
		{"Document", &models.Document{}},
		{"DocumentChunk", &models.DocumentChunk{}},
		{"RegulationPassage", &models.RegulationPassage{}},
		{"AnalysisResult", &models.AnalysisResult{}},
		{"ComplianceIssue", &models.ComplianceIssue{}},
		{"ProcessingJob", &models.ProcessingJob{}},
	}

	for _, t := range tables {
		log.Printf("Migrating %s model...", t.name)
		if err := DB.AutoMigrate(t.model); err != nil {
			log.Printf("%s migration failed: %v", t.name, err)
			return fmt.Errorf("migrate %s: %w", t.name, err)
		}
		log.Printf("✅ %s table migrated successfully", t.name)
	}

	log.Println("✅ All database migrations completed successfully")
	return nil
}

// Ping checks that the database answers
func Ping() error {
	if DB == nil {
		return fmt.Errorf("database connection not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the connection pool
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
