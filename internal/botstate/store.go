package botstate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/kis-trader/internal/domain"
	"github.com/kirillm/kis-trader/internal/metrics"
)

// ErrStaleGeneration возвращается, когда конфиг сменился во время тика
var ErrStaleGeneration = errors.New("bot config changed since tick start")

// Store - единственная изменяемая запись состояния бота.
// Все переходы выполняются под мьютексом.
type Store struct {
	mu              sync.RWMutex
	state           domain.BotState
	defaultQuantity int64
}

// NewStore создает хранилище с начальной конфигурацией
func NewStore(initial domain.BotConfig, running bool) *Store {
	defaultQty := initial.Quantity
	if defaultQty <= 0 {
		defaultQty = domain.DefaultOrderQuantity
	}

	s := &Store{defaultQuantity: defaultQty}
	s.state = domain.BotState{
		Run:      domain.RunStopped,
		Config:   s.withDefaults(initial.Normalize()),
		Position: domain.PositionFlat,
	}
	if running {
		s.state.Run = domain.RunRunning
	}
	s.publish()
	return s
}

// Snapshot возвращает копию текущего состояния
func (s *Store) Snapshot() domain.BotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetConfig заменяет конфигурацию и всегда сбрасывает позицию в FLAT,
// независимо от реальных остатков у брокера.
func (s *Store) SetConfig(cfg domain.BotConfig) (domain.BotState, error) {
	cfg = cfg.Normalize()
	if cfg.Symbol == "" {
		return domain.BotState{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if cfg.BuyThreshold < 0 || cfg.SellThreshold < 0 {
		return domain.BotState{}, fmt.Errorf("%w: thresholds must not be negative", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Config = s.withDefaults(cfg)
	s.state.Position = domain.PositionFlat
	s.state.Generation++
	s.publish()
	return s.state, nil
}

// ToggleRun переключает RUNNING/STOPPED, позицию не трогает
func (s *Store) ToggleRun() domain.BotState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Run == domain.RunRunning {
		s.state.Run = domain.RunStopped
	} else {
		s.state.Run = domain.RunRunning
	}
	s.publish()
	return s.state
}

// RecordFill применяет переход после исполненной заявки, если конфиг не
// менялся с начала тика.
func (s *Store) RecordFill(generation uint64, side domain.Side) (domain.BotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Generation != generation {
		return s.state, ErrStaleGeneration
	}

	switch side {
	case domain.SideBuy:
		s.state.Position = domain.PositionLong
	case domain.SideSell:
		s.state.Position = domain.PositionFlat
	default:
		return s.state, fmt.Errorf("%w: unknown order side %q", domain.ErrInvalidInput, side)
	}
	s.publish()
	return s.state, nil
}

// RecordTick сохраняет наблюдаемые данные тика; на переходы не влияет
func (s *Store) RecordTick(price int64, at time.Time, tickErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if price > 0 {
		s.state.LastPrice = price
	}
	s.state.LastTickAt = at
	s.state.LastError = ""
	if tickErr != nil {
		s.state.LastError = tickErr.Error()
	}
}

func (s *Store) withDefaults(cfg domain.BotConfig) domain.BotConfig {
	if cfg.Quantity <= 0 {
		cfg.Quantity = s.defaultQuantity
	}
	return cfg
}

// publish вызывается под блокировкой
func (s *Store) publish() {
	metrics.SetRunning(s.state.Run == domain.RunRunning)
	metrics.SetPositionLong(s.state.Position == domain.PositionLong)
}
