package db

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/velohost/velohub/logger"
)

type gormZerologWriter struct{}

func (w gormZerologWriter) Printf(format string, args ...interface{}) {
	logger.Logger.Debug().Msgf(format, args...)
}

func NewDB(uri string, logDBQueries bool) (*gorm.DB, error) {
	// sqlite needs a few pragmas to behave under concurrent writers
	if !strings.Contains(uri, "?") {
		uri = uri + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	gormConfig := &gorm.Config{
		TranslateError: true,
	}
	if logDBQueries {
		gormConfig.Logger = gormlogger.New(gormZerologWriter{}, gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Info,
		})
	} else {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	gormDB, err := gorm.Open(sqlite.Open(uri), gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	// a single connection sidesteps most sqlite lock contention
	sqlDB.SetMaxOpenConns(1)

	if logger.Logger.GetLevel() <= zerolog.DebugLevel {
		logger.Logger.Debug().Str("uri", uri).Msg("Database initialized")
	}

	return gormDB, nil
}
