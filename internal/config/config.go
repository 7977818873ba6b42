package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type PhonePeConfig struct {
	BaseURL       string
	MerchantID    string
	ClientID      string
	ClientSecret  string
	ClientVersion string
	Timeout       time.Duration
}

type ShipsyConfig struct {
	APIKey       string
	BookURL      string
	CancelURL    string
	CustomerCode string

	WarehouseName    string
	WarehousePhone   string
	WarehouseAddress string
	WarehousePincode string
	WarehouseCity    string
	WarehouseState   string

	ReturnName    string
	ReturnPhone   string
	ReturnAddress string
	ReturnPincode string
	ReturnCity    string
	ReturnState   string
	ReturnEmail   string

	Timeout time.Duration
}

type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

type Config struct {
	App struct {
		Port        string
		FrontendURL string
		BackendURL  string
	}
	Order struct {
		// MinPayable is the smallest chargeable payable amount in minor units.
		MinPayable int64
	}
	Postgres PostgresConfig
	PhonePe  PhonePeConfig
	Shipsy   ShipsyConfig
	SMTP     SMTPConfig
}

// Load reads configuration from the environment, optionally seeded from a
// .env file. Required keys fail loudly; optional keys fall back to defaults.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	var missing []string
	require := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{}
	cfg.App.Port = getenv("APP_PORT", "8080")
	cfg.App.FrontendURL = getenv("FRONTEND_URL", "http://localhost:3000")
	cfg.App.BackendURL = getenv("BACKEND_URL", "http://localhost:8080")

	cfg.Order.MinPayable = getenvInt64("ORDER_MIN_PAYABLE", 100)

	cfg.Postgres.Host = require("DB_HOST")
	cfg.Postgres.Port = require("DB_PORT")
	cfg.Postgres.User = require("DB_USER")
	cfg.Postgres.Password = require("DB_PASSWORD")
	cfg.Postgres.DBName = require("DB_NAME")
	cfg.Postgres.SSLMode = getenv("DB_SSLMODE", "disable")
	cfg.Postgres.MaxConns = int32(getenvInt64("DB_MAX_CONNS", 10))
	cfg.Postgres.MinConns = int32(getenvInt64("DB_MIN_CONNS", 2))
	cfg.Postgres.MaxConnLifetime = getenvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Postgres.MigrationsPath = getenv("MIGRATIONS_PATH", "migrations")

	cfg.PhonePe.BaseURL = require("PHONEPE_API_URL")
	cfg.PhonePe.MerchantID = require("PHONEPE_MERCHANT_ID")
	cfg.PhonePe.ClientID = require("PHONEPE_CLIENT_ID")
	cfg.PhonePe.ClientSecret = require("PHONEPE_CLIENT_SECRET")
	cfg.PhonePe.ClientVersion = getenv("PHONEPE_CLIENT_VERSION", "1")
	cfg.PhonePe.Timeout = getenvDuration("PHONEPE_TIMEOUT", 15*time.Second)

	cfg.Shipsy.APIKey = require("SHIPSY_API_KEY")
	cfg.Shipsy.BookURL = require("SHIPSY_BOOK_SHIPMENT_URL")
	cfg.Shipsy.CancelURL = require("SHIPSY_CANCEL_SHIPMENT_URL")
	cfg.Shipsy.CustomerCode = require("SHIPSY_CUSTOMER_CODE")
	cfg.Shipsy.WarehouseName = getenv("WAREHOUSE_NAME", "MalukForever Warehouse")
	cfg.Shipsy.WarehousePhone = getenv("WAREHOUSE_PHONE", "+919876543210")
	cfg.Shipsy.WarehouseAddress = getenv("WAREHOUSE_ADDRESS_LINE_1", "Warehouse Address Line 1")
	cfg.Shipsy.WarehousePincode = getenv("WAREHOUSE_PINCODE", "201301")
	cfg.Shipsy.WarehouseCity = getenv("WAREHOUSE_CITY", "Noida")
	cfg.Shipsy.WarehouseState = getenv("WAREHOUSE_STATE", "Uttar Pradesh")
	cfg.Shipsy.ReturnName = getenv("RETURN_NAME", "MalukForever WH HO")
	cfg.Shipsy.ReturnPhone = getenv("RETURN_PHONE", "+919876543210")
	cfg.Shipsy.ReturnAddress = getenv("RETURN_ADDRESS_LINE_1", "D-13, First Floor, Sector-3, Noida, 201301")
	cfg.Shipsy.ReturnPincode = getenv("RETURN_PINCODE", "201301")
	cfg.Shipsy.ReturnCity = getenv("RETURN_CITY", "NOIDA")
	cfg.Shipsy.ReturnState = getenv("RETURN_STATE", "UTTAR PRADESH")
	cfg.Shipsy.ReturnEmail = getenv("RETURN_EMAIL", "support@malukforever.com")
	cfg.Shipsy.Timeout = getenvDuration("SHIPSY_TIMEOUT", 20*time.Second)

	cfg.SMTP.Host = getenv("SMTP_HOST", "")
	cfg.SMTP.Port = getenv("SMTP_PORT", "587")
	cfg.SMTP.User = getenv("EMAIL_USER", "")
	cfg.SMTP.Pass = getenv("EMAIL_PASS", "")
	cfg.SMTP.From = getenv("EMAIL_FROM", cfg.SMTP.User)

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
