// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	AdminPassword           string `yaml:"admin_password" env:"ADMIN_PASSWORD"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	Session                 `yaml:"session"`
	Sweeper                 `yaml:"sweeper"`
	RabbitMQ                `yaml:"rabbitmq"`
	Alipay                  `yaml:"alipay"`
	Paypal                  `yaml:"paypal"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// Session структура для выпуска сессионных токенов.
type Session struct {
	SecretKey       string        `yaml:"secret_key" env:"SESSION_SECRET_KEY"`
	TokenTTL        time.Duration `yaml:"token_ttl" env-default:"168h"`
	AdminSessionTTL time.Duration `yaml:"admin_session_ttl" env-default:"24h"`
}

// Sweeper структура для настройки фонового перевода просроченных подписок.
type Sweeper struct {
	Interval time.Duration `yaml:"interval" env-default:"1h"`
}

// RabbitMQ структура для настройки подключения к брокеру уведомлений.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"10"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// Alipay структура с реквизитами приложения Alipay.
type Alipay struct {
	AlipayAppID      string `yaml:"app_id" env:"ALIPAY_APP_ID"`
	AlipayPrivateKey string `yaml:"private_key" env:"ALIPAY_PRIVATE_KEY"`
	AlipayPublicKey  string `yaml:"public_key" env:"ALIPAY_PUBLIC_KEY"`
	AlipayGateway    string `yaml:"gateway" env-default:"https://openapi.alipay.com/gateway.do"`
	AlipayNotifyURL  string `yaml:"notify_url"`
	AlipayReturnURL  string `yaml:"return_url"`
}

// Paypal структура с реквизитами приложения PayPal.
type Paypal struct {
	PaypalClientID     string  `yaml:"client_id" env:"PAYPAL_CLIENT_ID"`
	PaypalClientSecret string  `yaml:"client_secret" env:"PAYPAL_CLIENT_SECRET"`
	PaypalMode         string  `yaml:"mode" env-default:"sandbox"`
	PaypalReturnURL    string  `yaml:"return_url"`
	PaypalCancelURL    string  `yaml:"cancel_url"`
	CNYToUSDRate       float64 `yaml:"cny_to_usd_rate" env-default:"0.14"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH, при ошибке завершает процесс.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
