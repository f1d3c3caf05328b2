package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"

	"modular-auth/internal/auth"
	"modular-auth/internal/blob"
	"modular-auth/internal/config"
	"modular-auth/internal/notify"
	"modular-auth/internal/repository"
	"modular-auth/internal/repository/jsonfile"
	"modular-auth/internal/repository/postgres"
	"modular-auth/internal/repository/sqlite"
)

// backend bundles the repositories of the configured storage.
type backend struct {
	users  repository.UserRepository
	groups repository.GroupRepository
	// registry is false when groups cannot be created or disabled.
	registry bool
	location string
	close    func() error
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendJSON:
		store, err := buildBlobStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		repo := jsonfile.NewRepository(store)
		return &backend{
			users:    repo.Users(),
			groups:   repo.Groups(),
			location: store.Location(),
			close:    func() error { return nil },
		}, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return &backend{
			users:    sqlite.NewUserRepository(db),
			groups:   sqlite.NewGroupRepository(db),
			registry: true,
			location: cfg.Storage.SQLite.Path,
			close:    db.Close,
		}, nil

	case config.BackendPostgres:
		db, err := postgres.Open(cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres handle: %w", err)
		}
		return &backend{
			users:    postgres.NewUserRepository(db),
			groups:   postgres.NewGroupRepository(db),
			registry: true,
			location: "postgres",
			close:    sqlDB.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func buildBlobStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	jsonCfg := cfg.Storage.JSON
	if jsonCfg.Bucket == "" {
		return blob.NewFileStore(jsonCfg.Path), nil
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(jsonCfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if jsonCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(jsonCfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	store, err := blob.NewS3Store(client, jsonCfg.Bucket, jsonCfg.Key)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// deriveKey expands the session secret into an independent key per purpose.
func deriveKey(secret, purpose string) []byte {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("modauth "+purpose)), key); err != nil {
		panic(fmt.Sprintf("derive %s key: %v", purpose, err))
	}
	return key
}

func buildStateStore(cfg config.Config) sessions.Store {
	store := cookie.NewStore(deriveKey(cfg.Auth.SessionSecret, "state hash"), deriveKey(cfg.Auth.SessionSecret, "state block"))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Auth.LoginExpire.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// buildCookies returns the auth cookie plugin and a cleanup func for any
// connection it opened.
func buildCookies(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (auth.Cookies, func() error, error) {
	opts := auth.CookieOptions{
		LoginExpire: cfg.Auth.LoginExpire,
		Secure:      cfg.Auth.CookieSecure,
	}
	noop := func() error { return nil }
	secret := cfg.Auth.SessionSecret

	switch cfg.Auth.CookiePlugin {
	case config.CookieSigned:
		return auth.NewSignedCookies(deriveKey(secret, "auth hash"), deriveKey(secret, "auth block"), opts), noop, nil
	case config.CookieJWT:
		return auth.NewJWTCookies(deriveKey(secret, "jwt"), cfg.App.Name, opts), noop, nil
	case config.CookieToken:
		if cfg.Sessions.Store != "redis" {
			return auth.NewTokenCookies(auth.NewMemoryTokenStore(), opts), noop, nil
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Sessions.Redis.Addr,
			Password: cfg.Sessions.Redis.Password,
			DB:       cfg.Sessions.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Sessions.Redis.Addr, err)
		}
		logger.WithField("addr", cfg.Sessions.Redis.Addr).Info("token sessions stored in redis")
		return auth.NewTokenCookies(auth.NewRedisTokenStore(client), opts), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cookie plugin %q", cfg.Auth.CookiePlugin)
}

func buildMessenger(cfg config.Config, logger logrus.FieldLogger) notify.Messenger {
	if cfg.Mail.Provider != "smtp" {
		return notify.NewLogMessenger(logger)
	}
	smtp := cfg.Mail.SMTP
	return notify.NewEmailMessenger(notify.SMTPConfig{
		Host:               smtp.Host,
		Port:               smtp.Port,
		Username:           smtp.Username,
		Password:           smtp.Password,
		Encryption:         smtp.Encryption,
		InsecureSkipVerify: smtp.InsecureSkipVerify,
		FromEmail:          smtp.FromEmail,
		FromName:           lo.Ternary(smtp.FromName != "", smtp.FromName, cfg.App.Name),
		Timeout:            smtp.Timeout,
	}, logger)
}
