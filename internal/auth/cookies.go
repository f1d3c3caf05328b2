package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrNoSession means the request carries no usable auth cookie.
	ErrNoSession = errors.New("not logged in")
	// ErrSessionExpired means the auth cookie was valid once but has expired.
	ErrSessionExpired = errors.New("session expired")
)

// Cookies is the pluggable auth-cookie strategy.
type Cookies interface {
	// Check returns nil when the request carries a valid, unexpired auth cookie.
	Check(c *gin.Context) error
	Set(c *gin.Context, username string) error
	Expire(c *gin.Context)
	// Username returns the logged-in username, or "" when Check fails.
	Username(c *gin.Context) string
}

// CookieOptions are shared by every plugin.
type CookieOptions struct {
	LoginExpire time.Duration
	Secure      bool
	Path        string
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.LoginExpire <= 0 {
		o.LoginExpire = 24 * time.Hour
	}
	if o.Path == "" {
		o.Path = "/"
	}
	return o
}

func (o CookieOptions) issue(c *gin.Context, name, value string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, int(o.LoginExpire.Seconds()), o.Path, "", o.Secure, true)
}

func (o CookieOptions) clear(c *gin.Context, name string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, o.Path, "", o.Secure, true)
}

const (
	SignedCookieName = "modauth_auth"
	JWTCookieName    = "modauth_token"
	TokenCookieName  = "auth_token"
	UserCookieName   = "auth_username"
)

// SignedCookies stores the username in an HMAC-signed, encrypted cookie.
type SignedCookies struct {
	store cookie.Store
	opts  CookieOptions
}

// NewSignedCookies derives signing and encryption keys from secret.
func NewSignedCookies(hashKey, blockKey []byte, opts CookieOptions) *SignedCookies {
	opts = opts.withDefaults()
	store := cookie.NewStore(hashKey, blockKey)
	store.Options(sessions.Options{
		Path:     opts.Path,
		MaxAge:   int(opts.LoginExpire.Seconds()),
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return &SignedCookies{store: store, opts: opts}
}

var _ Cookies = (*SignedCookies)(nil)

func (s *SignedCookies) Check(c *gin.Context) error {
	_, err := s.username(c)
	return err
}

func (s *SignedCookies) username(c *gin.Context) (string, error) {
	session, err := s.store.Get(c.Request, SignedCookieName)
	if err != nil || session.IsNew {
		return "", ErrNoSession
	}
	username, _ := session.Values["username"].(string)
	expires, _ := session.Values["expires"].(int64)
	if username == "" {
		return "", ErrNoSession
	}
	if time.Now().Unix() > expires {
		return "", ErrSessionExpired
	}
	return username, nil
}

func (s *SignedCookies) Set(c *gin.Context, username string) error {
	session, _ := s.store.New(c.Request, SignedCookieName)
	session.Values["username"] = username
	session.Values["expires"] = time.Now().Add(s.opts.LoginExpire).Unix()
	if err := s.store.Save(c.Request, c.Writer, session); err != nil {
		return fmt.Errorf("save auth cookie: %w", err)
	}
	return nil
}

func (s *SignedCookies) Expire(c *gin.Context) {
	s.opts.clear(c, SignedCookieName)
}

func (s *SignedCookies) Username(c *gin.Context) string {
	username, _ := s.username(c)
	return username
}

// Claims carried by JWTCookies.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTCookies stores an HS256 token carrying the username and expiry.
type JWTCookies struct {
	secret []byte
	issuer string
	opts   CookieOptions
}

func NewJWTCookies(secret []byte, issuer string, opts CookieOptions) *JWTCookies {
	return &JWTCookies{secret: secret, issuer: issuer, opts: opts.withDefaults()}
}

var _ Cookies = (*JWTCookies)(nil)

func (j *JWTCookies) Check(c *gin.Context) error {
	_, err := j.parse(c)
	return err
}

func (j *JWTCookies) parse(c *gin.Context) (*Claims, error) {
	raw, err := c.Cookie(JWTCookieName)
	if err != nil || raw == "" {
		return nil, ErrNoSession
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	}, jwt.WithIssuer(j.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrNoSession
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Username == "" {
		return nil, ErrNoSession
	}
	return claims, nil
}

func (j *JWTCookies) Set(c *gin.Context, username string) error {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.opts.LoginExpire)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return fmt.Errorf("sign auth token: %w", err)
	}
	j.opts.issue(c, JWTCookieName, token)
	return nil
}

func (j *JWTCookies) Expire(c *gin.Context) {
	j.opts.clear(c, JWTCookieName)
}

func (j *JWTCookies) Username(c *gin.Context) string {
	claims, err := j.parse(c)
	if err != nil {
		return ""
	}
	return claims.Username
}

// TokenCookies pairs a random token cookie with a server-side TokenSession.
type TokenCookies struct {
	store TokenStore
	opts  CookieOptions
}

func NewTokenCookies(store TokenStore, opts CookieOptions) *TokenCookies {
	return &TokenCookies{store: store, opts: opts.withDefaults()}
}

var _ Cookies = (*TokenCookies)(nil)

func (t *TokenCookies) Check(c *gin.Context) error {
	_, err := t.username(c)
	return err
}

func (t *TokenCookies) username(c *gin.Context) (string, error) {
	username, session, ok := t.session(c)
	if !ok {
		return "", ErrNoSession
	}
	if time.Now().After(session.Expires) {
		return "", ErrSessionExpired
	}
	return username, nil
}

// session returns the stored session only when the request carries its token.
func (t *TokenCookies) session(c *gin.Context) (string, TokenSession, bool) {
	username, _ := c.Cookie(UserCookieName)
	token, _ := c.Cookie(TokenCookieName)
	username = strings.TrimSpace(username)
	if username == "" || token == "" {
		return "", TokenSession{}, false
	}
	session, ok, err := t.store.Get(c.Request.Context(), username)
	if err != nil || !ok {
		return "", TokenSession{}, false
	}
	if subtle.ConstantTimeCompare([]byte(session.Token), []byte(token)) != 1 {
		return "", TokenSession{}, false
	}
	return username, session, true
}

func (t *TokenCookies) Set(c *gin.Context, username string) error {
	token, err := RandomToken(48)
	if err != nil {
		return fmt.Errorf("generate auth token: %w", err)
	}
	session := TokenSession{
		Token:   token,
		Expires: time.Now().Add(t.opts.LoginExpire),
	}
	if err := t.store.Put(c.Request.Context(), username, session); err != nil {
		return err
	}
	t.opts.issue(c, TokenCookieName, token)
	t.opts.issue(c, UserCookieName, username)
	return nil
}

func (t *TokenCookies) Expire(c *gin.Context) {
	if username, _, ok := t.session(c); ok {
		_ = t.store.Delete(c.Request.Context(), username)
	}
	t.opts.clear(c, TokenCookieName)
}

func (t *TokenCookies) Username(c *gin.Context) string {
	username, _ := t.username(c)
	return username
}
