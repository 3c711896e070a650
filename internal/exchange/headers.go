package exchange

import (
	"fmt"
	"strconv"

	"github.com/kirillm/kis-trader/internal/domain"
)

// Credentials - ключи приложения KIS
type Credentials struct {
	AppKey    string
	AppSecret string
}

// orderCashBody - тело заявки order-cash
type orderCashBody struct {
	CANO       string `json:"CANO"`
	AcntPrdtCd string `json:"ACNT_PRDT_CD"`
	PDNO       string `json:"PDNO"`
	OrdDvsn    string `json:"ORD_DVSN"`
	OrdQty     string `json:"ORD_QTY"`
	OrdUnpr    string `json:"ORD_UNPR"`
}

// buildHeaders собирает заголовки авторизованного запроса
func buildHeaders(creds Credentials, token, trID string) map[string]string {
	return map[string]string{
		"authorization": "Bearer " + token,
		"appkey":        creds.AppKey,
		"appsecret":     creds.AppSecret,
		"tr_id":         trID,
		"custtype":      domain.KISCustTypeRetail,
	}
}

// OrderTrID возвращает tr_id заявки для стороны и режима торговли
func OrderTrID(side domain.Side, realTrading bool) (string, error) {
	switch {
	case side == domain.SideBuy && realTrading:
		return domain.TrIDRealBuy, nil
	case side == domain.SideBuy:
		return domain.TrIDPaperBuy, nil
	case side == domain.SideSell && realTrading:
		return domain.TrIDRealSell, nil
	case side == domain.SideSell:
		return domain.TrIDPaperSell, nil
	default:
		return "", fmt.Errorf("%w: unknown order side %q", domain.ErrInvalidInput, side)
	}
}

// buildOrderBody проверяет заявку и переводит ее в формат KIS
func buildOrderBody(req domain.OrderRequest) (orderCashBody, error) {
	if req.Symbol == "" {
		return orderCashBody{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if req.Account.Number == "" {
		return orderCashBody{}, fmt.Errorf("%w: account number is required", domain.ErrInvalidInput)
	}
	if req.Quantity <= 0 {
		return orderCashBody{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}

	productCode := req.Account.ProductCode
	if productCode == "" {
		productCode = domain.DefaultAccountProductCode
	}

	return orderCashBody{
		CANO:       req.Account.Number,
		AcntPrdtCd: productCode,
		PDNO:       req.Symbol,
		OrdDvsn:    orderType,
		OrdQty:     strconv.FormatInt(req.Quantity, 10),
		OrdUnpr:    "0",
	}, nil
}
