package strategy

import "github.com/kirillm/kis-trader/internal/domain"

// Decide возвращает сторону заявки для текущей цены, если она нужна.
// Сравнение нестрогое: цена ровно на пороге срабатывает.
func Decide(position domain.PositionState, cfg domain.BotConfig, price int64) (domain.Side, bool) {
	switch position {
	case domain.PositionFlat:
		if price <= cfg.BuyThreshold {
			return domain.SideBuy, true
		}
	case domain.PositionLong:
		if price >= cfg.SellThreshold {
			return domain.SideSell, true
		}
	}
	return "", false
}
