package models

import (
	"strings"
	"time"
)

// SyncOutcome итог отправки изменений на одну площадку: "synced", "skipped: ..." или "error: ..."
type SyncOutcome string

const OutcomeSynced SyncOutcome = "synced"

// ErrorOutcome описывает неудачную отправку
func ErrorOutcome(err error) SyncOutcome {
	return SyncOutcome("error: " + err.Error())
}

// SkippedOutcome описывает сознательно пропущенную отправку
func SkippedOutcome(reason string) SyncOutcome {
	return SyncOutcome("skipped: " + reason)
}

func (o SyncOutcome) IsError() bool {
	return strings.HasPrefix(string(o), "error:")
}

// SyncReport итоги отправки по площадкам
type SyncReport map[Marketplace]SyncOutcome

// ImportResult счетчики одного прохода слияния
type ImportResult struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Total    int      `json:"total"`
	Errors   []string `json:"errors,omitempty"`
}

// SyncResult результат синхронизации одной площадки в рамках запуска планировщика
type SyncResult struct {
	Marketplace Marketplace `json:"marketplace"`
	Imported    int         `json:"imported"`
	Updated     int         `json:"updated"`
	Skipped     int         `json:"skipped"`
	Failed      int         `json:"failed"`
	Errors      []string    `json:"errors"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt time.Time   `json:"completedAt"`
}

// SchedulerStatus состояние планировщика опроса
type SchedulerStatus struct {
	IsRunning       bool        `json:"isRunning"`
	LastSync        *time.Time  `json:"lastSync"`
	LastResult      *SyncResult `json:"lastResult"`
	NextSync        *time.Time  `json:"nextSync"`
	IntervalMinutes int         `json:"intervalMinutes"`
}

// TokenStatus состояние токена подключения
type TokenStatus struct {
	HasToken         bool       `json:"hasToken"`
	IsValid          bool       `json:"isValid"`
	ExpiresAt        *time.Time `json:"expiresAt"`
	HoursUntilExpiry *int       `json:"hoursUntilExpiry"`
}

// RefreshOutcome результат принудительного обновления токена
type RefreshOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
