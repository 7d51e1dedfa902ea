// Package sqlstore implements the catalogue, cart and order stores on MySQL
// through gorm. It is the alternative to the DynamoDB stores.
package sqlstore

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imrishuroy/go-cart-checkout/internal/config"
)

// Open returns a gorm DB using the provided configuration.
func Open(cfg config.MySQLConfig) (*gorm.DB, error) {
	return OpenDSN(cfg.DSN())
}

// OpenDSN opens a go-sql-driver/mysql DSN.
func OpenDSN(dsn string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	gdb, err := gorm.Open(mysql.Open(dsn), gormCfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return gdb, nil
}

// EnsureSchema applies the required database schema.
func EnsureSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&productModel{},
		&comboModel{},
		&comboItemModel{},
		&cartLineModel{},
		&orderModel{},
		&orderLineModel{},
	)
}
