package repository

import (
	"fmt"

	"github.com/amirphl/social-publisher/models"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the tables this service owns
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.SocialAccount{},
		&models.Campaign{},
		&models.Post{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
