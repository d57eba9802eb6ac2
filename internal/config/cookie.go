package config

import (
	"net/http"
	"time"
)

// WithDefaults fills in unset attributes. A template without SameSite
// becomes Lax and Secure, the path defaults to the root.
func (ct CookieTemplate) WithDefaults(name string) CookieTemplate {
	if ct.Name == "" {
		ct.Name = name
	}
	if ct.Path == "" {
		ct.Path = "/"
	}
	if ct.SameSite == "" {
		ct.SameSite = CookieSameSiteLax
		ct.Secure = true
	}

	return ct
}

func (ct *CookieTemplate) ToCookie(value string) *http.Cookie {
	var sameSite http.SameSite
	switch ct.SameSite {
	case CookieSameSiteNone:
		sameSite = http.SameSiteNoneMode
	case CookieSameSiteLax:
		sameSite = http.SameSiteLaxMode
	case CookieSameSiteStrict:
		sameSite = http.SameSiteStrictMode
	}

	return &http.Cookie{
		Name:     ct.Name,
		Value:    value,
		MaxAge:   ct.MaxAge,
		Path:     ct.Path,
		Domain:   ct.Domain,
		Secure:   ct.Secure,
		HttpOnly: ct.HTTPOnly,
		SameSite: sameSite,
	}
}

// Expire returns a cookie that deletes the one described by ct.
func (ct *CookieTemplate) Expire() *http.Cookie {
	c := ct.ToCookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)

	return c
}
