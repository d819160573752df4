package config

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"creditcontrol/internal/models"
)

var DB *gorm.DB

// InitDB initializes the database connection
func InitDB() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database instance:", err)
	}

	sqlDB.SetMaxIdleConns(50)
	sqlDB.SetMaxOpenConns(200)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db

	if err := AutoMigrate(DB); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
}

// AutoMigrate migrates all models on the given connection. Exposed separately
// so tests can migrate their own throwaway databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CreditLine{},
		&models.CreationRecord{},
		&models.PoolPosition{},
		&models.AuthorizedCaller{},
		&models.TokenBalance{},
		&models.TokenAllowance{},
		&models.TransferRecord{},
		&models.RebalanceRecord{},
		&models.AdminWithdrawal{},
	)
}
