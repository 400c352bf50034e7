package services

import (
	"fmt"
	"testing"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// setupTestDB points the package-level store at a fresh in-memory SQLite
// database for the duration of one test
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UserEntitlement{}, &models.ProcessedTransaction{}))

	previous := database.DB
	database.DB = db
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		database.DB = previous
	})
}

// createTestUser inserts an entitlement record and returns it
func createTestUser(t *testing.T, userID string, mutate func(*models.UserEntitlement)) *models.UserEntitlement {
	t.Helper()

	record := &models.UserEntitlement{
		UserID:               userID,
		Email:                userID + "@example.com",
		SubscriptionStatus:   models.StatusFree,
		SubscriptionPlatform: models.PlatformNone,
	}
	if mutate != nil {
		mutate(record)
	}
	require.NoError(t, database.CreateEntitlement(record))
	return record
}

func timePtr(t time.Time) *time.Time {
	return &t
}
