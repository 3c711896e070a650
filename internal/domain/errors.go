package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("invalid input")

	// ErrAuth возвращается, когда обмен ключей на токен не удался
	ErrAuth = errors.New("credential exchange failed")

	// ErrBroker возвращается при любой ошибке вызова брокера
	ErrBroker = errors.New("broker API error")
)

// BrokerErrorKind классифицирует ошибку брокера
type BrokerErrorKind string

const (
	BrokerNetwork     BrokerErrorKind = "network"
	BrokerAuth        BrokerErrorKind = "auth"
	BrokerBadResponse BrokerErrorKind = "bad_response"
)

// BrokerError - ошибка транспорта или разбора ответа брокера
type BrokerError struct {
	Kind       BrokerErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *BrokerError) Error() string {
	msg := fmt.Sprintf("broker %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BrokerError) Unwrap() error { return e.Err }

// Is позволяет проверять errors.Is(err, ErrBroker)
func (e *BrokerError) Is(target error) bool { return target == ErrBroker }

// NewBrokerError создает BrokerError
func NewBrokerError(kind BrokerErrorKind, op string, status int, err error) *BrokerError {
	return &BrokerError{Kind: kind, Op: op, StatusCode: status, Err: err}
}

// BrokerErrorKindOf возвращает вид ошибки брокера или пустую строку
func BrokerErrorKindOf(err error) BrokerErrorKind {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
