package datastore

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/mediaguard/internal/logging"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. Corpus scans over large fingerprint sets can legitimately
// approach this.
const DefaultSlowQueryThreshold = 1 * time.Second

var logger *slog.Logger

func init() {
	logger = logging.ForService("datastore")
	if logger == nil {
		logger = slog.Default().With("service", "datastore")
	}
}

// GetLogger returns the datastore package logger.
func GetLogger() *slog.Logger {
	return logger
}

// slogWriter adapts the package slog logger to GORM's logger writer.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...))
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return gormlogger.New(slogWriter{}, gormlogger.Config{
		SlowThreshold:             DefaultSlowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// performAutoMigration creates or updates the schema for all entities.
func performAutoMigration(db *gorm.DB, dialect, connectionInfo string) error {
	if err := db.AutoMigrate(&Fingerprint{}, &AnalysisJob{}, &HashMatch{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dialect, err)
	}
	logger.Info("database ready", "dialect", dialect, "database", connectionInfo)
	return nil
}
