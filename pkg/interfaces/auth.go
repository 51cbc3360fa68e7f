package interfaces

import "context"

// Principal оператор, выполняющий запрос к API управления
type Principal struct {
	Subject  string
	Username string
	Roles    []string
}

// HasRole проверяет наличие роли
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthPort определяет интерфейс для проверки токенов операторов
type AuthPort interface {
	// Verify проверяет bearer-токен и возвращает владельца
	Verify(ctx context.Context, token string) (*Principal, error)
}
