package config

import (
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"experience-backend/models"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("ACTION_TOKEN_SECRET", "action")
	t.Setenv("CRON_SECRET", "cron")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec")
	t.Setenv("SUPPLIER_JWT_SECRET", "jwt")
}

func TestLoadRequiresSecrets(t *testing.T) {
	setSecrets(t)
	t.Setenv("ACTION_TOKEN_SECRET", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ACTION_TOKEN_SECRET") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	setSecrets(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.PaymentWindow != 24*time.Hour || cfg.ResponseWindow != 48*time.Hour || cfg.AutoCompleteAfter != 7*24*time.Hour {
		t.Fatalf("unexpected windows %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("expected two brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setSecrets(t)
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestMySQLDSNFromURL(t *testing.T) {
	dsn, err := mysqlDSNFromURL("mysql://app:pw@db.internal/experiences")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(dsn, "app:pw@tcp(db.internal:3306)/experiences?") || !strings.Contains(dsn, "parseTime=True") {
		t.Fatalf("unexpected dsn %s", dsn)
	}
	if _, err := mysqlDSNFromURL("mysql://app:pw@db.internal"); err == nil {
		t.Fatalf("expected error for missing database")
	}
}

func TestMigrateAndSeed(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:config_seed?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	SeedDatabase(db)
	SeedDatabase(db)

	var experiences int64
	db.Model(&models.Experience{}).Count(&experiences)
	if experiences != 1 {
		t.Fatalf("expected one experience, got %d", experiences)
	}
	var d models.Distribution
	if err := db.First(&d, "experience_id = ?", DemoExperienceID).Error; err != nil {
		t.Fatalf("expected demo distribution, got %v", err)
	}
	if d.CommissionSupplier+d.CommissionHotel+d.CommissionPlatform != 100 {
		t.Fatalf("expected rates to sum to 100, got %+v", d)
	}
}
