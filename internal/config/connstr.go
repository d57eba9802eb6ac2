package config

import (
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

func MakeConnStr(conf Database) (string, error) {
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

// LoadOptional resolves ref, treating a ref without a source as empty.
func LoadOptional(ref commoncfg.SourceRef) (string, error) {
	if ref.Source == "" {
		return "", nil
	}

	value, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return "", err
	}

	return string(value), nil
}

// ValKeyOptions resolves the ValKey address and credentials.
func ValKeyOptions(conf ValKey) (host, user, password string, err error) {
	hostRaw, err := commoncfg.LoadValueFromSourceRef(conf.Host)
	if err != nil {
		return "", "", "", fmt.Errorf("loading valkey host: %w", err)
	}

	if user, err = LoadOptional(conf.User); err != nil {
		return "", "", "", fmt.Errorf("loading valkey user: %w", err)
	}

	if password, err = LoadOptional(conf.Password); err != nil {
		return "", "", "", fmt.Errorf("loading valkey password: %w", err)
	}

	return string(hostRaw), user, password, nil
}

// RedisOptions resolves the Redis address and credentials.
func RedisOptions(conf Redis) (addr, username, password string, err error) {
	addrRaw, err := commoncfg.LoadValueFromSourceRef(conf.Address)
	if err != nil {
		return "", "", "", fmt.Errorf("loading redis address: %w", err)
	}

	if username, err = LoadOptional(conf.Username); err != nil {
		return "", "", "", fmt.Errorf("loading redis username: %w", err)
	}

	if password, err = LoadOptional(conf.Password); err != nil {
		return "", "", "", fmt.Errorf("loading redis password: %w", err)
	}

	return string(addrRaw), username, password, nil
}
