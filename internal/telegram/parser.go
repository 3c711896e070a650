package telegram

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandArgs представляет распарсенные аргументы команды
type CommandArgs struct {
	Command   string
	Symbol    string
	BuyPrice  int64
	SellPrice int64
	Quantity  int64
	Raw       []string
}

// CommandType представляет тип команды
type CommandType string

const (
	CmdStatus CommandType = "status"
	CmdToggle CommandType = "toggle"
	CmdConfig CommandType = "config"
	CmdHelp   CommandType = "help"
	CmdStart  CommandType = "start"
)

// ParseCommand парсит команду и аргументы
func ParseCommand(text string) (*CommandArgs, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, fmt.Errorf("not a command")
	}

	parts := strings.Fields(text)
	if len(parts) == 0 || parts[0] == "/" {
		return nil, fmt.Errorf("empty command")
	}

	// /status@my_bot -> status
	cmd := strings.TrimPrefix(parts[0], "/")
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	cmd = normalizeCommand(cmd)

	args := &CommandArgs{
		Command: cmd,
		Raw:     parts[1:],
	}

	switch CommandType(cmd) {
	case CmdStatus, CmdToggle, CmdHelp, CmdStart:
		return args, nil

	case CmdConfig:
		// /config SYMBOL BUY SELL [QTY]
		if len(parts) < 4 {
			return nil, fmt.Errorf("usage: /config SYMBOL BUY SELL [QTY]")
		}
		args.Symbol = normalizeSymbol(parts[1])

		var err error
		if args.BuyPrice, err = parsePrice(parts[2]); err != nil {
			return nil, fmt.Errorf("invalid buy price %q", parts[2])
		}
		if args.SellPrice, err = parsePrice(parts[3]); err != nil {
			return nil, fmt.Errorf("invalid sell price %q", parts[3])
		}
		if len(parts) >= 5 {
			if args.Quantity, err = parsePrice(parts[4]); err != nil || args.Quantity <= 0 {
				return nil, fmt.Errorf("quantity must be a positive integer")
			}
		}
		return args, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", cmd)
	}
}

// normalizeSymbol приводит код бумаги к стандартному виду
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// normalizeCommand нормализует команду (поддержка русского языка)
func normalizeCommand(cmd string) string {
	cmd = strings.ToLower(strings.TrimSpace(cmd))

	ruToEn := map[string]string{
		"статус":      "status",
		"переключить": "toggle",
		"конфиг":      "config",
		"помощь":      "help",
	}

	if enCmd, ok := ruToEn[cmd]; ok {
		return enCmd
	}

	return cmd
}

// parsePrice парсит целую цену в вонах, допуская разделители тысяч
func parsePrice(s string) (int64, error) {
	s = strings.TrimSuffix(strings.ToUpper(s), "KRW")
	s = strings.NewReplacer(",", "", "_", "", "₩", "").Replace(s)

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if val < 0 {
		return 0, fmt.Errorf("negative value")
	}
	return val, nil
}
