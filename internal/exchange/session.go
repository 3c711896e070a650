package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/kirillm/kis-trader/internal/domain"
	"github.com/kirillm/kis-trader/internal/metrics"
	"github.com/kirillm/kis-trader/pkg/utils"
)

// expiryMargin - запас до истечения токена при включенном обновлении
const expiryMargin = time.Minute

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	AppSecret string `json:"appsecret"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// SessionManager получает и кеширует bearer-токен брокера.
// Закешированный токен возвращается без проверки срока, если
// honorExpiry не включен.
type SessionManager struct {
	http        *resty.Client
	creds       Credentials
	logger      *utils.Logger
	honorExpiry bool
	now         func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewSessionManager создает менеджер сессии поверх общего HTTP-клиента
func NewSessionManager(httpClient *resty.Client, creds Credentials, logger *utils.Logger, honorExpiry bool) *SessionManager {
	if logger == nil {
		logger = utils.Discard()
	}
	return &SessionManager{
		http:        httpClient,
		creds:       creds,
		logger:      logger.With("session"),
		honorExpiry: honorExpiry,
		now:         time.Now,
	}
}

// Credential возвращает действующий токен, при пустом кеше выполняет обмен.
// Конкурентные вызовы до первого успеха делят один запрос.
func (s *SessionManager) Credential(ctx context.Context) (string, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}

	v, err, shared := s.group.Do("token", func() (interface{}, error) {
		if token, ok := s.cached(); ok {
			return token, nil
		}
		return s.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.logger.Debug("Token exchange shared between concurrent callers")
	}
	return v.(string), nil
}

// hasCredential сообщает, есть ли токен в кеше
func (s *SessionManager) hasCredential() bool {
	_, ok := s.cached()
	return ok
}

func (s *SessionManager) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", false
	}
	if s.honorExpiry && !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return "", false
	}
	return s.token, true
}

func (s *SessionManager) exchange(ctx context.Context) (string, error) {
	s.logger.Info("Requesting access token")

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(tokenRequest{
			GrantType: domain.KISGrantType,
			AppKey:    s.creds.AppKey,
			AppSecret: s.creds.AppSecret,
		}).
		Post(domain.KISTokenPath)
	if err != nil {
		metrics.IncTokenExchange("error")
		return "", fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(resp.Body(), &tokenResp); err != nil {
		metrics.IncTokenExchange("error")
		return "", fmt.Errorf("%w: http %d: failed to unmarshal response: %v", domain.ErrAuth, resp.StatusCode(), err)
	}

	if resp.StatusCode() != http.StatusOK || tokenResp.AccessToken == "" {
		metrics.IncTokenExchange("error")
		return "", fmt.Errorf("%w: http %d: %s %s", domain.ErrAuth, resp.StatusCode(),
			tokenResp.ErrorCode, tokenResp.ErrorDescription)
	}

	s.mu.Lock()
	s.token = tokenResp.AccessToken
	s.expiresAt = time.Time{}
	if s.honorExpiry && tokenResp.ExpiresIn > 0 {
		s.expiresAt = s.now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - expiryMargin)
	}
	s.mu.Unlock()

	metrics.IncTokenExchange("ok")
	s.logger.Info("Access token acquired")
	return tokenResp.AccessToken, nil
}
