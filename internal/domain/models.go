package domain

import (
	"strings"
	"time"
)

// PositionState - предполагаемая позиция бота. Это убеждение, а не
// сверенный с брокером остаток.
type PositionState string

const (
	PositionFlat PositionState = "FLAT"
	PositionLong PositionState = "LONG"
)

// RunState управляется только явным переключением
type RunState string

const (
	RunStopped RunState = "STOPPED"
	RunRunning RunState = "RUNNING"
)

// BotConfig содержит символ и пороги торговли.
// Порядок BuyThreshold < SellThreshold не проверяется.
type BotConfig struct {
	Symbol        string `json:"symbol" yaml:"symbol"`
	BuyThreshold  int64  `json:"buyPrice" yaml:"buy_price"`
	SellThreshold int64  `json:"sellPrice" yaml:"sell_price"`
	Quantity      int64  `json:"quantity" yaml:"quantity"`
}

// Normalize приводит символ к каноническому виду
func (c BotConfig) Normalize() BotConfig {
	c.Symbol = strings.TrimSpace(c.Symbol)
	return c
}

// BotState - снимок единственной изменяемой записи процесса
type BotState struct {
	Run      RunState
	Config   BotConfig
	Position PositionState

	// Generation увеличивается при каждом SetConfig
	Generation uint64

	LastPrice  int64
	LastTickAt time.Time
	LastError  string
}

// IsRunning сообщает, включен ли бот
func (s BotState) IsRunning() bool {
	return s.Run == RunRunning
}

// PriceQuote - текущая цена, запрашивается заново на каждом тике
type PriceQuote struct {
	Symbol    string
	LastPrice int64
	FetchedAt time.Time
}

// Account - реквизиты счета у брокера
type Account struct {
	Number      string // CANO
	ProductCode string // ACNT_PRDT_CD
}

// OrderRequest - рыночная заявка на фиксированное количество
type OrderRequest struct {
	Side      Side
	Symbol    string
	Account   Account
	OrderType string
	Quantity  int64
}

// OrderResult - итог отправки заявки. Filled=false означает отказ брокера,
// а не ошибку транспорта.
type OrderResult struct {
	Filled  bool
	OrderNo string
	Code    string
	Message string
	At      time.Time
}
