// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	Storage     Storage     `yaml:"storage"`
	Database    Database    `yaml:"database"`
	ValKey      ValKey      `yaml:"valkey"`
	Redis       Redis       `yaml:"redis"`
	Housekeeper Housekeeper `yaml:"housekeeper"`
	AgeGate     AgeGate     `yaml:"ageGate"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`

	// PublicURL is the externally visible origin of the server. Deep links
	// are built from it and the request URI.
	PublicURL string `yaml:"publicURL" default:"http://localhost:8080"`
}

type StorageType string

const (
	StorageTypeCookie StorageType = "cookie"
	StorageTypeLocal  StorageType = "local"
	StorageTypeValKey StorageType = "valkey"
	StorageTypeRedis  StorageType = "redis"
	StorageTypeSQL    StorageType = "sql"
)

type Storage struct {
	Type      StorageType `yaml:"type" default:"cookie"`
	KeyPrefix string      `yaml:"keyPrefix" default:"aw_"`
	Cookie    Cookie      `yaml:"cookie"`
	Local     Local       `yaml:"local"`
}

// Cookie configures the cookie backend. Values are signed with HashKey and
// encrypted with BlockKey when it is set.
type Cookie struct {
	HashKey  commoncfg.SourceRef `yaml:"hashKey"`
	BlockKey commoncfg.SourceRef `yaml:"blockKey"`
	Template CookieTemplate      `yaml:"template"`
}

type Local struct {
	DefaultTTL      time.Duration `yaml:"defaultTTL" default:"24h"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" default:"1m"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

type Redis struct {
	Address   commoncfg.SourceRef `yaml:"address"`
	Username  commoncfg.SourceRef `yaml:"username"`
	Password  commoncfg.SourceRef `yaml:"password"`
	DB        int                 `yaml:"db"`
	Prefix    string              `yaml:"prefix"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

type Housekeeper struct {
	Interval time.Duration `yaml:"interval" default:"1h"`
}

type GateMode string

const (
	GateModeOverlay GateMode = "overlay"
	GateModeAPI     GateMode = "api"
)

type AgeGate struct {
	ClientID     commoncfg.SourceRef `yaml:"clientID"`
	ClientSecret commoncfg.SourceRef `yaml:"clientSecret"`
	RedirectURI  string              `yaml:"redirectURI" default:"http://localhost:8080/callback"`
	Mode         GateMode            `yaml:"mode" default:"overlay"`
	StateTTL     time.Duration       `yaml:"stateTTL" default:"10m"`
	Endpoints    Endpoints           `yaml:"endpoints"`
	APIEndpoint  string              `yaml:"apiEndpoint"`

	// ProtectedContent is the HTML released to verified visitors.
	ProtectedContent string `yaml:"protectedContent" default:"<p>Welcome. Your age has been verified.</p>"`

	CSRFSecret    commoncfg.SourceRef `yaml:"csrfSecret"`
	SessionCookie CookieTemplate      `yaml:"sessionCookie"`
	HTTPTimeout   time.Duration       `yaml:"httpTimeout" default:"10s"`

	// MTLS authenticates the outbound calls to the provider when set.
	MTLS *commoncfg.MTLS `yaml:"mtls"`
}

// Endpoints override the provider URLs, e.g. to route through an intermediary.
type Endpoints struct {
	Auth     string `yaml:"auth"`
	Token    string `yaml:"token"`
	Userinfo string `yaml:"userinfo"`
}

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

type CookieTemplate struct {
	Name     string         `yaml:"name"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure"`
	SameSite CookieSameSite `yaml:"sameSite"`
	HTTPOnly bool           `yaml:"httpOnly"`
}
