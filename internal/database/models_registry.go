package database

import "alumnet/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Friendship{},
		&models.UserBlock{},
		&models.Chat{},
		&models.Message{},
	}
}
