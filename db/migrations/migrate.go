package migrations

import (
	"github.com/velohost/velohub/db"
	"gorm.io/gorm"
)

func Migrate(gormDB *gorm.DB) error {
	// AutoMigrate all core models
	return gormDB.AutoMigrate(
		&db.Order{},
		&db.RenewalPayment{},
		&db.ServerActionRequest{},
	)
}
