package marketplace

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
)

// ErrorKind класс ошибки вызова площадки
type ErrorKind string

const (
	KindTransport   ErrorKind = "transport"
	KindAuth        ErrorKind = "auth"
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
)

// Error ошибка вызова площадки
type Error struct {
	Marketplace models.Marketplace
	Op          string
	StatusCode  int
	Kind        ErrorKind
	Message     string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Marketplace, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Marketplace, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// kindForStatus классифицирует HTTP-статус ответа площадки
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindTransport
	}
}

func hasKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsAuth сообщает, что площадка отклонила учетные данные
func IsAuth(err error) bool {
	return hasKind(err, KindAuth)
}

// IsNotFound сообщает, что объявления или заказа нет на площадке
func IsNotFound(err error) bool {
	return hasKind(err, KindNotFound)
}
