package config

import (
	"errors"
	"strings"
)

// KeycloakConfig параметры проверки токенов операторов через Keycloak
type KeycloakConfig struct {
	ServerURL    string
	Realm        string
	ClientID     string
	ClientSecret string
}

// IssuerURL адрес realm, он же issuer в токенах
func (k KeycloakConfig) IssuerURL() string {
	return strings.TrimRight(k.ServerURL, "/") + "/realms/" + k.Realm
}

func (k KeycloakConfig) Validate() error {
	if k.ServerURL == "" || k.Realm == "" || k.ClientID == "" {
		return errors.New("keycloak mode requires security.keycloak.serverURL, realm and clientID")
	}
	return nil
}
