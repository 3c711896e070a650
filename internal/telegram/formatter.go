package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillm/kis-trader/internal/domain"
)

// Lang представляет язык
type Lang string

const (
	LangEN Lang = "en"
	LangRU Lang = "ru"
)

// Formatter форматирует ответы для пользователя
type Formatter struct {
	lang Lang
}

func NewFormatter(lang Lang) *Formatter {
	if lang != LangRU && lang != LangEN {
		lang = LangEN
	}
	return &Formatter{lang: lang}
}

func (f *Formatter) SetLang(lang Lang) {
	f.lang = lang
}

func (f *Formatter) GetLang() Lang {
	return f.lang
}

var translations = map[string]map[Lang]string{
	"status":         {LangEN: "Status", LangRU: "Статус"},
	"running":        {LangEN: "Running", LangRU: "Работает"},
	"stopped":        {LangEN: "Stopped", LangRU: "Остановлен"},
	"symbol":         {LangEN: "Symbol", LangRU: "Бумага"},
	"buy_below":      {LangEN: "Buy at or below", LangRU: "Покупка при цене не выше"},
	"sell_above":     {LangEN: "Sell at or above", LangRU: "Продажа при цене не ниже"},
	"quantity":       {LangEN: "Quantity", LangRU: "Количество"},
	"position":       {LangEN: "Position", LangRU: "Позиция"},
	"last_price":     {LangEN: "Last price", LangRU: "Последняя цена"},
	"last_tick":      {LangEN: "Last tick", LangRU: "Последний тик"},
	"ago":            {LangEN: "ago", LangRU: "назад"},
	"last_error":     {LangEN: "Last error", LangRU: "Последняя ошибка"},
	"config_updated": {LangEN: "Config updated, position reset to", LangRU: "Конфиг обновлен, позиция сброшена в"},
	"success":        {LangEN: "Success", LangRU: "Успешно"},
	"error":          {LangEN: "Error", LangRU: "Ошибка"},
	"access_denied":  {LangEN: "Access denied", LangRU: "Доступ запрещен"},
}

// T переводит строку
func (f *Formatter) T(key string) string {
	if tr, ok := translations[key]; ok {
		if text, ok := tr[f.lang]; ok {
			return text
		}
	}
	return key
}

// FormatStatus форматирует снимок состояния бота
func (f *Formatter) FormatStatus(st domain.BotState, now time.Time) string {
	var sb strings.Builder

	sb.WriteString("📊 ")
	sb.WriteString(f.T("status"))
	sb.WriteString(": ")
	sb.WriteString(f.runLabel(st))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("%s: %s\n", f.T("symbol"), st.Config.Symbol))
	sb.WriteString(fmt.Sprintf("%s: %s KRW\n", f.T("buy_below"), FormatKRW(st.Config.BuyThreshold)))
	sb.WriteString(fmt.Sprintf("%s: %s KRW\n", f.T("sell_above"), FormatKRW(st.Config.SellThreshold)))
	sb.WriteString(fmt.Sprintf("%s: %d\n", f.T("quantity"), st.Config.Quantity))
	sb.WriteString(fmt.Sprintf("%s: %s\n", f.T("position"), st.Position))

	if !st.LastTickAt.IsZero() {
		sb.WriteString("\n")
		if st.LastPrice > 0 {
			sb.WriteString(fmt.Sprintf("%s: %s KRW\n", f.T("last_price"), FormatKRW(st.LastPrice)))
		}
		sb.WriteString(fmt.Sprintf("%s: %s %s\n", f.T("last_tick"), FormatDuration(now.Sub(st.LastTickAt)), f.T("ago")))
	}
	if st.LastError != "" {
		sb.WriteString(fmt.Sprintf("⚠️ %s: %s\n", f.T("last_error"), st.LastError))
	}

	return sb.String()
}

func (f *Formatter) FormatToggle(st domain.BotState) string {
	if st.IsRunning() {
		return "▶️ " + f.T("running")
	}
	return "⏸ " + f.T("stopped")
}

func (f *Formatter) FormatConfigUpdated(st domain.BotState) string {
	return fmt.Sprintf("✅ %s %s\n\n%s %s / %s, x%d",
		f.T("config_updated"), st.Position,
		st.Config.Symbol, FormatKRW(st.Config.BuyThreshold), FormatKRW(st.Config.SellThreshold), st.Config.Quantity)
}

// FormatHelp возвращает список команд
func (f *Formatter) FormatHelp() string {
	if f.lang == LangRU {
		return "🤖 Команды:\n\n" +
			"/status - текущее состояние\n" +
			"/toggle - запустить или остановить бота\n" +
			"/config SYMBOL BUY SELL [QTY] - задать бумагу и пороги (позиция сбрасывается в FLAT)\n" +
			"/help - эта справка"
	}
	return "🤖 Commands:\n\n" +
		"/status - current bot state\n" +
		"/toggle - start or stop the bot\n" +
		"/config SYMBOL BUY SELL [QTY] - set symbol and thresholds (resets position to FLAT)\n" +
		"/help - this message"
}

func (f *Formatter) FormatError(err error) string {
	return fmt.Sprintf("❌ %s: %v", f.T("error"), err)
}

func (f *Formatter) FormatSuccess(message string) string {
	return fmt.Sprintf("✅ %s: %s", f.T("success"), message)
}

func (f *Formatter) runLabel(st domain.BotState) string {
	if st.IsRunning() {
		return f.T("running")
	}
	return f.T("stopped")
}

// FormatKRW печатает сумму с разделителями тысяч: 1234567 -> 1,234,567
func FormatKRW(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	s := fmt.Sprintf("%d", v)
	var sb strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	return sign + sb.String()
}

// FormatDuration форматирует длительность
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
