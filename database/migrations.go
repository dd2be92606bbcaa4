package database

import (
	"fmt"
	"log"

	"chatui/models"
)

func Migrate() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.ChatSession{},
		&models.Message{},
		&models.MCPOperation{},
		&models.UserPreferences{},
		&models.RefreshToken{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	fmt.Println("Migrations completed")
}
