package models

import "time"

// Credentials учетные данные подключения.
// Смысл полей зависит от площадки, например Amazon хранит в APIURL код региона.
type Credentials struct {
	APIURL       string `json:"apiUrl,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	APISecret    string `json:"apiSecret,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

// Connection подключение к площадке, по одной записи на площадку
type Connection struct {
	ID             int64       `json:"id"`
	Marketplace    Marketplace `json:"marketplace"`
	Credentials    Credentials `json:"credentials"`
	IsConnected    bool        `json:"isConnected"`
	TokenExpiresAt *time.Time  `json:"tokenExpiresAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Usable сообщает, можно ли сейчас вызывать адаптер этой площадки
func (c *Connection) Usable(now time.Time) bool {
	if c == nil || !c.IsConnected {
		return false
	}
	if c.Marketplace.RequiresAccessToken() {
		if c.Credentials.AccessToken == "" {
			return false
		}
		if c.TokenExpiresAt != nil && !c.TokenExpiresAt.After(now) {
			return false
		}
	}
	return true
}

// ConnectionView представление подключения без секретов
type ConnectionView struct {
	ID             int64       `json:"id"`
	Marketplace    Marketplace `json:"marketplace"`
	IsConnected    bool        `json:"isConnected"`
	APIURL         string      `json:"apiUrl,omitempty"`
	TokenExpiresAt *time.Time  `json:"tokenExpiresAt,omitempty"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// View скрывает ключи и токены
func (c *Connection) View() ConnectionView {
	return ConnectionView{
		ID:             c.ID,
		Marketplace:    c.Marketplace,
		IsConnected:    c.IsConnected,
		APIURL:         c.Credentials.APIURL,
		TokenExpiresAt: c.TokenExpiresAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
