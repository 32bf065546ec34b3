package app

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/mouton0815/aggregate-event-duality/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DBTimeout = 10 * time.Second

type DatabaseConfig struct {
	*gorm.DB
	DSN   string `env:"DB_DSN"`
	Debug bool
}

// Setup opens the embedded store and migrates the five logical tables.
func (dbConf *DatabaseConfig) Setup() {

	// Force GORM logger to silent and discard output to prevent SQL logs
	// being printed to stdout. Enable DB_DEBUG for SQL logs.
	logLevel := logger.Silent
	logWriter := io.Discard
	if dbConf.Debug {
		logLevel = logger.Info
		logWriter = os.Stdout
	}
	newLogger := logger.New(
		log.New(logWriter, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dbConf.DSN), &gorm.Config{
		Logger: newLogger,
	})

	if err != nil {
		logrus.Fatal("Failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.Fatal("Failed to get sql.DB from gorm:", err)
	}

	// One connection only: the store is the single shared resource and
	// all writers serialize on it. With an in-memory DSN this also keeps
	// every transaction on the same database instance.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	dbConf.DB = db

	models := []interface{}{
		&model.Revision{},
		&model.Person{},
		&model.Location{},
		&model.PersonEvent{},
		&model.LocationEvent{},
	}

	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			logrus.Warn("AutoMigrate error:", err)
		}
	}

	logrus.Info("Database connection established & migration completed")
}
