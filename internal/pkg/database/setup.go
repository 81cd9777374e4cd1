package database

import (
	"fmt"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// GetDB returns the connection opened by SetupDatabase
func GetDB() *gorm.DB {
	return DB
}

// SetupDatabase opens the configured database and migrates the index tables.
// DB_DRIVER selects mysql (default) or sqlite.
func SetupDatabase() {
	var err error
	switch env.GetEnv("DB_DRIVER", "mysql") {
	case "sqlite":
		DB, err = Open(sqlite.Open(env.GetEnv("DB_PATH", "fdp-index.db")))
	default:
		DB, err = openMySQL()
	}
	if err != nil {
		panic(err)
	}

	if err := Migrate(DB); err != nil {
		panic(err)
	}
}

func openMySQL() (*gorm.DB, error) {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	var db *gorm.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = Open(mysql.New(mysql.Config{
			DSN:                       dsn,   // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  false, // finished_at must not sort before created_at
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}))
		if err == nil {
			return db, nil
		}

		log.Warnf("[Database] Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// Open connects with the settings every index component relies on:
// driver errors are translated so duplicate keys surface as
// gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	cfg := &gorm.Config{TranslateError: true}
	if !env.IsDev() {
		cfg.Logger = logger.Default.LogMode(logger.Warn)
	}
	return gorm.Open(dialector, cfg)
}

// OpenMemory opens a private in-memory SQLite database with the index
// schema. Each call yields an independent database.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one connection keeps the memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the index tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Setting{},
		&models.IndexEntry{},
		&models.IndexEvent{},
		&models.IndexWebhook{},
		&models.IndexWebhookEvent{},
		&models.Statement{},
	)
}

// Close releases the underlying connection pool
func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
