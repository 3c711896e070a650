package telegram

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AuthManager пропускает только разрешенные чаты и ограничивает частоту команд
type AuthManager struct {
	mu           sync.Mutex
	allowed      map[int64]bool
	rateLimiters map[int64]*chatLimiter
	perSecond    rate.Limit
	burst        int
}

type chatLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAuthManager создает менеджер для набора чатов. Пустой набор запрещает всех.
func NewAuthManager(chatIDs []int64, perSecond float64, burst int) *AuthManager {
	if burst <= 0 {
		burst = 1
	}

	am := &AuthManager{
		allowed:      make(map[int64]bool, len(chatIDs)),
		rateLimiters: make(map[int64]*chatLimiter),
		perSecond:    rate.Limit(perSecond),
		burst:        burst,
	}
	for _, id := range chatIDs {
		if id != 0 {
			am.allowed[id] = true
		}
	}
	return am
}

// IsAllowed проверяет доступ чата
func (am *AuthManager) IsAllowed(chatID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()
	return am.allowed[chatID]
}

// CheckRateLimit проверяет rate limit для чата
func (am *AuthManager) CheckRateLimit(chatID int64) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	cl, exists := am.rateLimiters[chatID]
	if !exists {
		cl = &chatLimiter{limiter: rate.NewLimiter(am.perSecond, am.burst)}
		am.rateLimiters[chatID] = cl
	}
	cl.lastSeen = time.Now()

	if !cl.limiter.Allow() {
		return fmt.Errorf("rate limit exceeded, please slow down")
	}
	return nil
}

// CleanupRateLimiters удаляет лимитеры неактивных чатов
func (am *AuthManager) CleanupRateLimiters(idle time.Duration) {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := time.Now()
	for chatID, cl := range am.rateLimiters {
		if now.Sub(cl.lastSeen) > idle {
			delete(am.rateLimiters, chatID)
		}
	}
}

func (am *AuthManager) limiterCount() int {
	am.mu.Lock()
	defer am.mu.Unlock()
	return len(am.rateLimiters)
}
