package telegram

import (
	"context"
	"time"

	"github.com/kirillm/kis-trader/internal/botstate"
	"github.com/kirillm/kis-trader/internal/domain"
)

// Handlers выполняют команды чата над тем же хранилищем, что и Control API
type Handlers struct {
	store     *botstate.Store
	formatter *Formatter
	now       func() time.Time
}

func NewHandlers(store *botstate.Store, formatter *Formatter) *Handlers {
	return &Handlers{
		store:     store,
		formatter: formatter,
		now:       time.Now,
	}
}

// Register подключает все команды к роутеру
func (h *Handlers) Register(r *Router) {
	r.RegisterHandler(CmdStatus, h.HandleStatus)
	r.RegisterHandler(CmdToggle, h.HandleToggle)
	r.RegisterHandler(CmdConfig, h.HandleConfig)
	r.RegisterHandler(CmdHelp, h.HandleHelp)
	r.RegisterHandler(CmdStart, h.HandleHelp)
}

// HandleStatus обрабатывает команду /status
func (h *Handlers) HandleStatus(ctx context.Context, args *CommandArgs) (string, error) {
	return h.formatter.FormatStatus(h.store.Snapshot(), h.now()), nil
}

// HandleToggle обрабатывает команду /toggle
func (h *Handlers) HandleToggle(ctx context.Context, args *CommandArgs) (string, error) {
	return h.formatter.FormatToggle(h.store.ToggleRun()), nil
}

// HandleConfig обрабатывает команду /config SYMBOL BUY SELL [QTY]
func (h *Handlers) HandleConfig(ctx context.Context, args *CommandArgs) (string, error) {
	state, err := h.store.SetConfig(domain.BotConfig{
		Symbol:        args.Symbol,
		BuyThreshold:  args.BuyPrice,
		SellThreshold: args.SellPrice,
		Quantity:      args.Quantity,
	})
	if err != nil {
		return "", err
	}
	return h.formatter.FormatConfigUpdated(state), nil
}

func (h *Handlers) HandleHelp(ctx context.Context, args *CommandArgs) (string, error) {
	return h.formatter.FormatHelp(), nil
}
