package utils

import (
	"strconv"
	"strings"
	"time"
)

// GenerateConnectionString собирает DSN в формате key=value для pgx
func GenerateConnectionString(
	host, user, password, dbName, sslMode string,
	port, poolSize int,
	timeout time.Duration,
) (string, error) {
	if host == "" {
		return "", ErrStorageEmptyHostName
	}
	if port <= 0 || port > 65535 {
		return "", ErrStorageInvalidPortNumber
	}
	if user == "" {
		return "", ErrStorageEmptyUsername
	}
	if dbName == "" {
		return "", ErrStorageInvalidDatabaseName
	}
	switch sslMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return "", ErrStorageInvalidSslMode
	}
	if timeout < 0 {
		return "", ErrStorageInvalidTimeout
	}
	if poolSize < 0 {
		return "", ErrStorageInvalidPoolSize
	}

	var conStr strings.Builder
	conStr.WriteString("host=")
	conStr.WriteString(host)
	conStr.WriteString(" port=")
	conStr.WriteString(strconv.Itoa(port))
	conStr.WriteString(" user=")
	conStr.WriteString(user)
	if password != "" {
		conStr.WriteString(" password=")
		conStr.WriteString(quoteValue(password))
	}
	conStr.WriteString(" dbname=")
	conStr.WriteString(dbName)
	conStr.WriteString(" sslmode=")
	conStr.WriteString(sslMode)

	if timeout > 0 {
		conStr.WriteString(" connect_timeout=")
		conStr.WriteString(strconv.Itoa(int(timeout.Seconds())))
	}

	return conStr.String(), nil
}

// quoteValue экранирует значение с пробелами или кавычками
func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
