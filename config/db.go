package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"experience-backend/models"
	"experience-backend/utils"
)

func mysqlDSNFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	user := u.User.Username()
	pass, _ := u.User.Password()
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "3306"
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return "", fmt.Errorf("mysql url missing database name")
	}

	q := u.Query()
	if q.Get("charset") == "" {
		q.Set("charset", "utf8mb4")
	}
	if q.Get("parseTime") == "" {
		q.Set("parseTime", "True")
	}
	if q.Get("loc") == "" {
		q.Set("loc", "UTC")
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", user, pass, host, port, dbName, q.Encode()), nil
}

func resolveMySQLDSN() (string, error) {
	raw := strings.TrimSpace(os.Getenv("MYSQL_URL"))
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if raw != "" {
		if strings.HasPrefix(raw, "mysql://") {
			return mysqlDSNFromURL(raw)
		}
		return raw, nil
	}

	user := utils.EnvOrDefault("DB_USER", "root")
	pass := os.Getenv("DB_PASS")
	host := utils.EnvOrDefault("DB_HOST", "127.0.0.1")
	port := utils.EnvOrDefault("DB_PORT", "3306")
	dbName := utils.EnvOrDefault("DB_NAME", "experiences")

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, pass, host, port, dbName,
	), nil
}

// resolvePostgresDSN accepts DATABASE_URL as is (postgres://...) or builds a
// keyword DSN from DB_*.
func resolvePostgresDSN() string {
	if raw := strings.TrimSpace(os.Getenv("DATABASE_URL")); raw != "" {
		return raw
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		utils.EnvOrDefault("DB_HOST", "127.0.0.1"),
		utils.EnvOrDefault("DB_PORT", "5432"),
		utils.EnvOrDefault("DB_USER", "postgres"),
		os.Getenv("DB_PASS"),
		utils.EnvOrDefault("DB_NAME", "experiences"),
		utils.EnvOrDefault("DB_SSLMODE", "disable"),
	)
}

func dialector(driver string) (gorm.Dialector, error) {
	switch driver {
	case "postgres":
		return postgres.Open(resolvePostgresDSN()), nil
	case "mysql", "":
		dsn, err := resolveMySQLDSN()
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
}

// Migrate creates or updates every table, parents first.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Supplier{},
		&models.Channel{},
		&models.Experience{},
		&models.AvailabilityRule{},
		&models.Session{},
		&models.Distribution{},
		&models.Reservation{},
		&models.Payout{},
		&models.Booking{},
		&models.WebhookEvent{},
	)
}

// ConnectDatabase opens the configured database and migrates it.
func ConnectDatabase(cfg Config) (*gorm.DB, error) {
	dial, err := dialector(cfg.DBDriver)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.GinMode != "release" {
		level = logger.Info
	}
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      level,
			Colorful:      cfg.GinMode != "release",
		},
	)

	db, err := gorm.Open(dial, &gorm.Config{Logger: newLogger, NowFunc: func() time.Time { return time.Now().UTC() }})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if cfg.SeedDemo {
		SeedDatabase(db)
	}
	return db, nil
}
