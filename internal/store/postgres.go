package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewPostgresDB opens a PostgreSQL connection with pooling suitable for
// many concurrent pipeline runs. The database may still be starting when
// the service boots, so the connection is retried before giving up;
// callers fall back to the in-memory store on error.
func NewPostgresDB(dsn string, retries int, retryDelay time.Duration, logger *zap.Logger) (*gorm.DB, error) {
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:      gormlogger.Default.LogMode(gormlogger.Warn),
			PrepareStmt: true,
		})
		if err == nil {
			sqlDB, derr := db.DB()
			if derr != nil {
				return nil, fmt.Errorf("failed to get database connection: %w", derr)
			}
			if perr := sqlDB.Ping(); perr == nil {
				sqlDB.SetMaxOpenConns(50)
				sqlDB.SetMaxIdleConns(10)
				sqlDB.SetConnMaxLifetime(time.Hour)
				sqlDB.SetConnMaxIdleTime(15 * time.Minute)
				return db, nil
			} else {
				err = perr
			}
		}
		lastErr = err
		logger.Warn("Postgres not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Int("retries", retries),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("postgres unavailable after %d attempts: %w", retries, lastErr)
}
