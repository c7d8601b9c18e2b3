package config

import (
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

// MakeConnStr returns Database.URL when set, otherwise a key/value
// connection string built from the discrete fields.
func MakeConnStr(conf Database) (string, error) {
	if conf.URL != "" {
		return conf.URL, nil
	}

	host, err := commoncfg.LoadValueFromSourceRef(conf.Host)
	if err != nil {
		return "", fmt.Errorf("loading db host: %w", err)
	}

	user, err := commoncfg.LoadValueFromSourceRef(conf.User)
	if err != nil {
		return "", fmt.Errorf("loading db user: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(conf.Password)
	if err != nil {
		return "", fmt.Errorf("loading db password: %w", err)
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s",
		host, user, string(password), conf.Name, conf.Port), nil
}

// LoadJWTSecret resolves the signing key. An absent key is not an error here;
// the token codec reports it when a token is first issued or verified.
func LoadJWTSecret(conf Auth) ([]byte, error) {
	if conf.JWTSecret.Source == "" {
		return nil, nil
	}

	secret, err := commoncfg.LoadValueFromSourceRef(conf.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("loading jwt secret: %w", err)
	}

	return secret, nil
}
