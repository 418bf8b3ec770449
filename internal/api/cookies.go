package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Cookie names shared by the REST API, the Datastar endpoints and the pages.
const (
	CookieBrowser = "smoke_bid"
	CookieSession = "smoke_session"
	CookieLocale  = "smoke_locale"
)

const cookieMaxAge = 365 * 24 * time.Hour

// Cookies are the request cookies the handlers care about. Embed it in a
// Huma input struct.
type Cookies struct {
	BrowserID string `cookie:"smoke_bid" doc:"Browser identifier"`
	Session   string `cookie:"smoke_session" doc:"Session token"`
	Locale    string `cookie:"smoke_locale" doc:"Preferred locale"`
}

// NewBrowserID returns a fresh browser identifier.
func NewBrowserID() string {
	return uuid.NewString()
}

// BrowserCookie pins the browser id for a year.
func BrowserCookie(id string, secure bool) *http.Cookie {
	return persistent(CookieBrowser, id, cookieMaxAge, secure)
}

// SessionCookie carries the session token until it expires.
func SessionCookie(id string, expires time.Time, secure bool) *http.Cookie {
	c := persistent(CookieSession, id, time.Until(expires), secure)
	c.Expires = expires
	return c
}

// LocaleCookie remembers an explicit language choice.
func LocaleCookie(locale string, secure bool) *http.Cookie {
	c := persistent(CookieLocale, locale, cookieMaxAge, secure)
	c.HttpOnly = false
	return c
}

// ClearCookie expires name immediately.
func ClearCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func persistent(name, value string, maxAge time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
