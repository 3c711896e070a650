package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kirillm/kis-trader/internal/botstate"
	"github.com/kirillm/kis-trader/internal/domain"
	"github.com/kirillm/kis-trader/internal/metrics"
	"github.com/kirillm/kis-trader/pkg/utils"
)

// Broker - операции брокера, нужные циклу
type Broker interface {
	GetPrice(ctx context.Context, symbol string) (*domain.PriceQuote, error)
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error)
}

const notifyQueueSize = 32

// Outcome - итог одного тика
type Outcome string

const (
	OutcomeBusy        Outcome = "busy"
	OutcomeStopped     Outcome = "stopped"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeNoAction    Outcome = "no_action"
	OutcomeFilled      Outcome = "filled"
	OutcomeRejected    Outcome = "rejected"
	OutcomeOrderFailed Outcome = "order_failed"
	OutcomeStale       Outcome = "stale"
)

// TickResult описывает, что произошло за тик
type TickResult struct {
	ID      string
	Outcome Outcome
	Price   int64
	Side    domain.Side
	Order   *domain.OrderResult
	Err     error
}

// Scheduler периодически запрашивает цену и исполняет переходы
// FLAT/LONG. Тики не перекрываются: если предыдущий еще выполняется,
// следующий пропускается.
type Scheduler struct {
	broker     Broker
	store      *botstate.Store
	account    domain.Account
	interval   time.Duration
	logger     *utils.Logger
	notifyFunc func(string)

	busy atomic.Bool

	// уведомления отправляются отдельной горутиной, тик их не ждет
	notifyOnce sync.Once
	notifyCh   chan string

	mu   sync.Mutex
	cron *cron.Cron
	now  func() time.Time
}

func NewScheduler(
	broker Broker,
	store *botstate.Store,
	account domain.Account,
	interval time.Duration,
	logger *utils.Logger,
	notifyFunc func(string),
) *Scheduler {
	if logger == nil {
		logger = utils.Discard()
	}
	return &Scheduler{
		broker:     broker,
		store:      store,
		account:    account,
		interval:   interval,
		logger:     logger.With("scheduler"),
		notifyFunc: notifyFunc,
		now:        time.Now,
	}
}

// Start запускает таймер тиков. Работа тика не прерывается отменой ctx,
// Stop дожидается ее завершения.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already running")
	}

	cronLogger := cron.PrintfLogger(s.logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	tickCtx := context.WithoutCancel(ctx)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Tick(tickCtx)
	}); err != nil {
		return fmt.Errorf("failed to schedule ticks: %w", err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("Scheduler started with interval %s", s.interval)
	return nil
}

// Stop останавливает таймер и ждет завершения текущего тика
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Tick выполняет одну оценку автомата: не более одной заявки за тик
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	res := TickResult{ID: uuid.NewString()[:8]}
	log := s.logger.With("tick " + res.ID)

	if !s.busy.CompareAndSwap(false, true) {
		res.Outcome = OutcomeBusy
		log.Warn("Previous tick still in flight, skipping")
		metrics.IncTick(string(res.Outcome))
		return res
	}
	defer s.busy.Store(false)
	defer func() { metrics.IncTick(string(res.Outcome)) }()

	snap := s.store.Snapshot()
	if !snap.IsRunning() {
		res.Outcome = OutcomeStopped
		return res
	}

	quote, err := s.broker.GetPrice(ctx, snap.Config.Symbol)
	if err != nil {
		res.Outcome = OutcomeFetchFailed
		res.Err = err
		log.Error("Failed to get price for %s: %v", snap.Config.Symbol, err)
		s.store.RecordTick(0, s.now(), err)
		return res
	}

	res.Price = quote.LastPrice
	metrics.SetLastPrice(quote.LastPrice)

	side, act := Decide(snap.Position, snap.Config, quote.LastPrice)
	if !act {
		res.Outcome = OutcomeNoAction
		log.Debug("%s @ %d, position %s: no action", snap.Config.Symbol, quote.LastPrice, snap.Position)
		s.store.RecordTick(quote.LastPrice, s.now(), nil)
		return res
	}

	res.Side = side
	req := domain.OrderRequest{
		Side:      side,
		Symbol:    snap.Config.Symbol,
		Account:   s.account,
		OrderType: domain.OrderTypeMarket,
		Quantity:  snap.Config.Quantity,
	}

	log.Info("%s @ %d crossed threshold, submitting %s x%d", req.Symbol, quote.LastPrice, side, req.Quantity)

	result, err := s.broker.SubmitOrder(ctx, req)
	if err != nil {
		res.Outcome = OutcomeOrderFailed
		res.Err = err
		metrics.IncOrder(string(side), "error")
		log.Error("Order %s %s failed: %v", side, req.Symbol, err)
		s.store.RecordTick(quote.LastPrice, s.now(), err)
		s.notify(fmt.Sprintf("❌ %s %s failed: %v", side, req.Symbol, err))
		return res
	}

	res.Order = result
	if !result.Filled {
		res.Outcome = OutcomeRejected
		metrics.IncOrder(string(side), "rejected")
		log.Warn("Order %s %s rejected: %s %s", side, req.Symbol, result.Code, result.Message)
		s.store.RecordTick(quote.LastPrice, s.now(), fmt.Errorf("order rejected: %s %s", result.Code, result.Message))
		s.notify(fmt.Sprintf("⚠️ %s %s rejected\n\n%s %s", side, req.Symbol, result.Code, result.Message))
		return res
	}

	metrics.IncOrder(string(side), "filled")
	s.store.RecordTick(quote.LastPrice, s.now(), nil)

	state, err := s.store.RecordFill(snap.Generation, side)
	if errors.Is(err, botstate.ErrStaleGeneration) {
		res.Outcome = OutcomeStale
		res.Err = err
		log.Warn("Order %s %s filled but config changed meanwhile, position stays %s", side, req.Symbol, state.Position)
		s.notify(fmt.Sprintf("⚠️ %s %s filled after reconfiguration, position reset to %s", side, req.Symbol, state.Position))
		return res
	}
	if err != nil {
		res.Outcome = OutcomeOrderFailed
		res.Err = err
		log.Error("Failed to record fill: %v", err)
		return res
	}

	res.Outcome = OutcomeFilled
	log.Info("Order %s %s filled (%s), position %s", side, req.Symbol, result.OrderNo, state.Position)
	s.notify(fmt.Sprintf(
		"✅ %s Executed\n\n"+
			"Symbol: %s\n"+
			"Quantity: %d\n"+
			"Price: %d KRW\n"+
			"Order No: %s\n"+
			"Position: %s",
		side, req.Symbol, req.Quantity, quote.LastPrice, result.OrderNo, state.Position,
	))
	return res
}

// notify ставит сообщение в очередь. При переполненной очереди сообщение
// теряется, тик не блокируется.
func (s *Scheduler) notify(msg string) {
	if s.notifyFunc == nil {
		return
	}

	s.notifyOnce.Do(func() {
		s.notifyCh = make(chan string, notifyQueueSize)
		go s.drainNotifications()
	})

	select {
	case s.notifyCh <- msg:
	default:
		s.logger.Warn("Notification queue full, dropping: %s", msg)
	}
}

func (s *Scheduler) drainNotifications() {
	for msg := range s.notifyCh {
		s.notifyFunc(msg)
	}
}
