package tests

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/velohost/velohub/config"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/db/migrations"
	"github.com/velohost/velohub/events"
	"github.com/velohost/velohub/logger"
)

type TestService struct {
	Cfg            *config.AppConfig
	DB             *gorm.DB
	EventPublisher events.EventPublisher
}

// CreateTestService spins up a fully migrated throwaway database in the
// test's temp directory plus a fresh event publisher.
func CreateTestService(t *testing.T) (*TestService, error) {
	logger.Init("4")

	gormDB, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		return nil, err
	}
	if err := migrations.Migrate(gormDB); err != nil {
		return nil, err
	}

	return &TestService{
		Cfg: &config.AppConfig{
			Port:        "1680",
			DatabaseUri: "test.db",
		},
		DB:             gormDB,
		EventPublisher: events.NewEventPublisher(),
	}, nil
}

func (svc *TestService) Remove() {
	sqlDB, err := svc.DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
