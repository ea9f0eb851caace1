package main

import (
	"log"
	"os"

	"cluster-intelligence-be/internal/migration"
	"cluster-intelligence-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting cluster schema migration...")
	if err := migration.Run(db); err != nil {
		log.Fatalf("Error: %v", err)
	}
	log.Println("Success: Database migration completed.")
}
