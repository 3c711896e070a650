package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/kirillm/kis-trader/internal/domain"
	"github.com/kirillm/kis-trader/pkg/utils"
)

const (
	opInquirePrice = "inquire-price"
	opOrderCash    = "order-cash"
)

// Options - параметры клиента KIS
type Options struct {
	BaseURL     string
	Credentials Credentials
	RealTrading bool
	Timeout     time.Duration
	RateLimit   float64 // запросов в секунду, <= 0 без ограничения
	TokenExpiry bool
	Logger      *utils.Logger
}

// KISClient - типизированные операции над HTTP API брокера
type KISClient struct {
	http        *resty.Client
	creds       Credentials
	session     *SessionManager
	limiter     *rate.Limiter
	realTrading bool
	logger      *utils.Logger
}

type priceResponse struct {
	RtCd   string `json:"rt_cd"`
	MsgCd  string `json:"msg_cd"`
	Msg1   string `json:"msg1"`
	Output struct {
		StckPrpr string `json:"stck_prpr"`
		StckOprc string `json:"stck_oprc"`
		PrdyCtrt string `json:"prdy_ctrt"`
	} `json:"output"`
}

type orderResponse struct {
	RtCd   *string `json:"rt_cd"`
	MsgCd  string  `json:"msg_cd"`
	Msg1   string  `json:"msg1"`
	Output struct {
		KRXFwdgOrdOrgno string `json:"KRX_FWDG_ORD_ORGNO"`
		ODNO            string `json:"ODNO"`
		OrdTmd          string `json:"ORD_TMD"`
	} `json:"output"`
}

func NewKISClient(opts Options) *KISClient {
	logger := opts.Logger
	if logger == nil {
		logger = utils.Discard()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json; charset=utf-8")

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &KISClient{
		http:        httpClient,
		creds:       opts.Credentials,
		session:     NewSessionManager(httpClient, opts.Credentials, logger, opts.TokenExpiry),
		limiter:     rate.NewLimiter(limit, 1),
		realTrading: opts.RealTrading,
		logger:      logger.With("kis"),
	}
}

// Session возвращает менеджер сессии клиента
func (k *KISClient) Session() *SessionManager {
	return k.session
}

// GetPrice получает текущую цену бумаги
func (k *KISClient) GetPrice(ctx context.Context, symbol string) (*domain.PriceQuote, error) {
	token, err := k.session.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}

	if err := k.limiter.Wait(ctx); err != nil {
		return nil, domain.NewBrokerError(domain.BrokerNetwork, opInquirePrice, 0, err)
	}

	resp, err := k.http.R().
		SetContext(ctx).
		SetHeaders(buildHeaders(k.creds, token, domain.TrIDInquirePrice)).
		SetQueryParams(map[string]string{
			"FID_COND_MRKT_DIV_CODE": domain.KISMarketStock,
			"FID_INPUT_ISCD":         symbol,
		}).
		Get(domain.KISPricePath)
	if err != nil {
		return nil, domain.NewBrokerError(domain.BrokerNetwork, opInquirePrice, 0, err)
	}

	if err := checkAuthStatus(opInquirePrice, resp.StatusCode()); err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, domain.NewBrokerError(domain.BrokerBadResponse, opInquirePrice, resp.StatusCode(),
			errors.New("unexpected status"))
	}

	var priceResp priceResponse
	if err := json.Unmarshal(resp.Body(), &priceResp); err != nil {
		return nil, domain.NewBrokerError(domain.BrokerBadResponse, opInquirePrice, resp.StatusCode(),
			fmt.Errorf("failed to unmarshal response: %w", err))
	}

	if priceResp.RtCd != "" && priceResp.RtCd != domain.KISSuccessCode {
		return nil, domain.NewBrokerError(domain.BrokerBadResponse, opInquirePrice, resp.StatusCode(),
			fmt.Errorf("%s %s", priceResp.MsgCd, priceResp.Msg1))
	}

	raw := strings.TrimSpace(priceResp.Output.StckPrpr)
	if raw == "" {
		return nil, domain.NewBrokerError(domain.BrokerBadResponse, opInquirePrice, resp.StatusCode(),
			fmt.Errorf("empty price data for symbol %s", symbol))
	}

	price, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || price <= 0 {
		return nil, domain.NewBrokerError(domain.BrokerBadResponse, opInquirePrice, resp.StatusCode(),
			fmt.Errorf("invalid price %q for symbol %s", raw, symbol))
	}

	return &domain.PriceQuote{
		Symbol:    symbol,
		LastPrice: price,
		FetchedAt: time.Now(),
	}, nil
}

// SubmitOrder отправляет рыночную заявку. Отказ брокера (rt_cd != "0")
// возвращается как Filled=false без ошибки.
func (k *KISClient) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	body, err := buildOrderBody(req)
	if err != nil {
		return nil, err
	}

	trID, err := OrderTrID(req.Side, k.realTrading)
	if err != nil {
		return nil, err
	}

	token, err := k.session.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}

	if err := k.limiter.Wait(ctx); err != nil {
		return nil, domain.NewBrokerError(domain.BrokerNetwork, opOrderCash, 0, err)
	}

	resp, err := k.http.R().
		SetContext(ctx).
		SetHeaders(buildHeaders(k.creds, token, trID)).
		SetBody(body).
		Post(domain.KISOrderPath)
	if err != nil {
		return nil, domain.NewBrokerError(domain.BrokerNetwork, opOrderCash, 0, err)
	}

	if err := checkAuthStatus(opOrderCash, resp.StatusCode()); err != nil {
		return nil, err
	}

	var orderResp orderResponse
	if err := json.Unmarshal(resp.Body(), &orderResp); err != nil {
		return nil, domain.NewBrokerError(domain.BrokerBadResponse, opOrderCash, resp.StatusCode(),
			fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if orderResp.RtCd == nil {
		return nil, domain.NewBrokerError(domain.BrokerBadResponse, opOrderCash, resp.StatusCode(),
			errors.New("response has no rt_cd"))
	}

	result := &domain.OrderResult{
		Filled:  *orderResp.RtCd == domain.KISSuccessCode,
		OrderNo: orderResp.Output.ODNO,
		Code:    orderResp.MsgCd,
		Message: orderResp.Msg1,
		At:      time.Now(),
	}

	if result.Filled {
		k.logger.Info("Order %s %s x%d accepted: %s", req.Side, req.Symbol, req.Quantity, result.OrderNo)
	} else {
		k.logger.Warn("Order %s %s x%d rejected: %s %s", req.Side, req.Symbol, req.Quantity, result.Code, result.Message)
	}

	return result, nil
}

func checkAuthStatus(op string, status int) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return domain.NewBrokerError(domain.BrokerAuth, op, status, errors.New("credential rejected"))
	}
	return nil
}
