package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kirillm/kis-trader/internal/domain"
)

// Config содержит все настройки приложения
type Config struct {
	KIS      KISConfig
	Bot      BotConfig
	Server   ServerConfig
	Telegram TelegramConfig
	LogLevel string
}

type KISConfig struct {
	AppKey             string
	AppSecret          string
	AccountNo          string
	AccountProductCode string
	RealTrading        bool
	BaseURL            string
	RequestTimeout     time.Duration
	RateLimit          float64
	TokenExpiry        bool
}

type BotConfig struct {
	Symbol       string
	BuyPrice     int64
	SellPrice    int64
	Quantity     int64
	TickInterval time.Duration
	Autostart    bool
}

type ServerConfig struct {
	Port int
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// botFile - формат необязательного YAML-файла с настройками бота
type botFile struct {
	Symbol    *string `yaml:"symbol"`
	BuyPrice  *int64  `yaml:"buy_price"`
	SellPrice *int64  `yaml:"sell_price"`
	Quantity  *int64  `yaml:"quantity"`
	Autostart *bool   `yaml:"autostart"`
}

// Load загружает конфигурацию из .env файла и окружения
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if path := getEnv("BOT_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyBotFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv собирает конфигурацию только из переменных окружения, без проверки
func FromEnv() (*Config, error) {
	realTrading, err := strconv.ParseBool(getEnv("KIS_REAL_TRADING", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid KIS_REAL_TRADING: %w", err)
	}

	timeout, err := time.ParseDuration(getEnv("KIS_REQUEST_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid KIS_REQUEST_TIMEOUT: %w", err)
	}

	defaultRate := "2"
	if realTrading {
		defaultRate = "15"
	}
	rateLimit, err := strconv.ParseFloat(getEnv("KIS_RATE_LIMIT", defaultRate), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid KIS_RATE_LIMIT: %w", err)
	}

	tokenExpiry, err := strconv.ParseBool(getEnv("KIS_TOKEN_EXPIRY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid KIS_TOKEN_EXPIRY: %w", err)
	}

	buyPrice, err := strconv.ParseInt(getEnv("BOT_BUY_PRICE", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_BUY_PRICE: %w", err)
	}

	sellPrice, err := strconv.ParseInt(getEnv("BOT_SELL_PRICE", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_SELL_PRICE: %w", err)
	}

	quantity, err := strconv.ParseInt(getEnv("BOT_ORDER_QTY", strconv.Itoa(domain.DefaultOrderQuantity)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_ORDER_QTY: %w", err)
	}

	tickInterval, err := time.ParseDuration(getEnv("BOT_TICK_INTERVAL", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_TICK_INTERVAL: %w", err)
	}

	autostart, err := strconv.ParseBool(getEnv("BOT_AUTOSTART", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_AUTOSTART: %w", err)
	}

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	chatID, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	baseURL := domain.KISPaperBaseURL
	if realTrading {
		baseURL = domain.KISRealBaseURL
	}

	return &Config{
		KIS: KISConfig{
			AppKey:             getEnv("KIS_APP_KEY", ""),
			AppSecret:          getEnv("KIS_APP_SECRET", ""),
			AccountNo:          getEnv("KIS_ACCOUNT_NO", ""),
			AccountProductCode: getEnv("KIS_ACCOUNT_PRODUCT_CODE", domain.DefaultAccountProductCode),
			RealTrading:        realTrading,
			BaseURL:            strings.TrimRight(getEnv("KIS_BASE_URL", baseURL), "/"),
			RequestTimeout:     timeout,
			RateLimit:          rateLimit,
			TokenExpiry:        tokenExpiry,
		},
		Bot: BotConfig{
			Symbol:       getEnv("BOT_SYMBOL", domain.DefaultSymbol),
			BuyPrice:     buyPrice,
			SellPrice:    sellPrice,
			Quantity:     quantity,
			TickInterval: tickInterval,
			Autostart:    autostart,
		},
		Server: ServerConfig{
			Port: port,
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   chatID,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

func (c *Config) applyBotFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open bot config: %w", err)
	}
	defer f.Close()

	var bf botFile
	if err := yaml.NewDecoder(f).Decode(&bf); err != nil {
		return fmt.Errorf("decode bot config: %w", err)
	}

	if bf.Symbol != nil {
		c.Bot.Symbol = *bf.Symbol
	}
	if bf.BuyPrice != nil {
		c.Bot.BuyPrice = *bf.BuyPrice
	}
	if bf.SellPrice != nil {
		c.Bot.SellPrice = *bf.SellPrice
	}
	if bf.Quantity != nil {
		c.Bot.Quantity = *bf.Quantity
	}
	if bf.Autostart != nil {
		c.Bot.Autostart = *bf.Autostart
	}
	return nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.KIS.AppKey == "" {
		return fmt.Errorf("KIS_APP_KEY is required")
	}
	if c.KIS.AppSecret == "" {
		return fmt.Errorf("KIS_APP_SECRET is required")
	}
	if c.KIS.AccountNo == "" {
		return fmt.Errorf("KIS_ACCOUNT_NO is required")
	}
	if c.Bot.TickInterval <= 0 {
		return fmt.Errorf("BOT_TICK_INTERVAL must be positive")
	}
	// cron @every работает с целыми секундами
	if c.Bot.TickInterval < time.Second || c.Bot.TickInterval%time.Second != 0 {
		return fmt.Errorf("BOT_TICK_INTERVAL must be a whole number of seconds, got %s", c.Bot.TickInterval)
	}
	if c.Bot.BuyPrice < 0 || c.Bot.SellPrice < 0 {
		return fmt.Errorf("bot thresholds must not be negative")
	}
	if c.Bot.Quantity <= 0 {
		return fmt.Errorf("BOT_ORDER_QTY must be positive")
	}
	return nil
}

// InitialBotConfig возвращает стартовую конфигурацию бота
func (c *Config) InitialBotConfig() domain.BotConfig {
	return domain.BotConfig{
		Symbol:        c.Bot.Symbol,
		BuyThreshold:  c.Bot.BuyPrice,
		SellThreshold: c.Bot.SellPrice,
		Quantity:      c.Bot.Quantity,
	}
}

// Account возвращает реквизиты счета
func (c *Config) Account() domain.Account {
	return domain.Account{
		Number:      c.KIS.AccountNo,
		ProductCode: c.KIS.AccountProductCode,
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
