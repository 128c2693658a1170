// Package backend gives access to the hosted platform the job board runs on:
// the auth service, the Postgres database, object storage and the event bus.
package backend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jobboard/apiserver/config"
	"github.com/jobboard/apiserver/internal/db"
	"github.com/jobboard/apiserver/internal/mq"
	"github.com/jobboard/apiserver/internal/storage"
)

// Auth modes.
const (
	AuthModeRemote = "remote"
	AuthModeLocal  = "local"
)

// Client bundles the collaborators of the hosted backend.
type Client struct {
	Auth Auth
	DB   *sqlx.DB
	// Storage is nil when no object store is configured.
	Storage *storage.Storage
	Events  *mq.Publisher
	// JWTSecret verifies access tokens issued by Auth.
	JWTSecret []byte
}

// Close releases the database connection and the event bus.
func (c *Client) Close() error {
	var errs []error
	if c.Events != nil {
		errs = append(errs, c.Events.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}

// reconnectInterval is the minimum time between two attempts to build the
// client after a failed one.
const reconnectInterval = 5 * time.Second

// Accessor lazily builds the backend Client and hands out the same instance
// afterwards. Missing configuration is memoized as nil; a failed connect is
// retried on a later call once reconnectInterval has passed.
type Accessor struct {
	cfg    config.Config
	logger *zap.Logger
	build  func(ctx context.Context) (*Client, error)
	now    func() time.Time

	mu          sync.Mutex
	client      *Client
	final       bool
	lastAttempt time.Time
}

// NewAccessor returns an Accessor for cfg.
func NewAccessor(cfg config.Config, logger *zap.Logger) *Accessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Accessor{cfg: cfg, logger: logger, now: time.Now}
	a.build = a.connect
	return a
}

// NewStaticAccessor returns an Accessor that always hands out c, which may be nil.
func NewStaticAccessor(c *Client) *Accessor {
	return &Accessor{logger: zap.NewNop(), now: time.Now, client: c, final: true}
}

// Client returns the backend client, or nil when the backend is not
// configured or could not be reached recently.
func (a *Accessor) Client(ctx context.Context) *Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil || a.final {
		return a.client
	}
	if strings.TrimSpace(a.cfg.Backend.URL) == "" || strings.TrimSpace(a.cfg.Backend.AnonKey) == "" {
		a.logger.Error("backend not configured: SUPABASE_URL and SUPABASE_ANON_KEY are required")
		a.final = true
		return nil
	}
	now := a.now()
	if !a.lastAttempt.IsZero() && now.Sub(a.lastAttempt) < reconnectInterval {
		return nil
	}
	a.lastAttempt = now

	c, err := a.build(context.WithoutCancel(ctx))
	if err != nil {
		a.logger.Error("backend client construction failed",
			zap.Duration("retry_after", reconnectInterval), zap.Error(err))
		return nil
	}
	a.client = c
	return c
}

// Close closes the client if one was built.
func (a *Accessor) Close() error {
	a.mu.Lock()
	c := a.client
	a.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

func (a *Accessor) connect(ctx context.Context) (*Client, error) {
	dbConn, err := db.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}

	secret := []byte(a.cfg.Backend.JWTSecret)
	var auth Auth
	switch strings.ToLower(a.cfg.Backend.AuthMode) {
	case AuthModeLocal:
		if len(secret) == 0 {
			secret, err = randomSecret()
			if err != nil {
				_ = dbConn.Close()
				return nil, err
			}
			a.logger.Warn("SUPABASE_JWT_SECRET not set, using an ephemeral secret for local auth")
		}
		auth = NewLocalAuth(dbConn, LocalAuthOptions{
			Secret:        secret,
			SiteURL:       a.cfg.Backend.SiteURL,
			EmailsPerHour: a.cfg.Backend.EmailsPerHour,
			Logger:        a.logger.Named("localauth"),
		})
	case AuthModeRemote, "":
		auth = NewGoTrueClient(a.cfg.Backend.URL, a.cfg.Backend.AnonKey, a.cfg.Backend.Timeout)
	default:
		_ = dbConn.Close()
		return nil, fmt.Errorf("unknown auth mode %q", a.cfg.Backend.AuthMode)
	}

	store, err := storage.New(ctx, a.cfg.Storage)
	if err != nil {
		a.logger.Warn("object storage unavailable, uploads disabled", zap.Error(err))
		store = nil
	}
	if store != nil {
		if err := store.EnsureBucket(ctx); err != nil {
			a.logger.Warn("object storage bucket not ready", zap.String("bucket", store.Bucket()), zap.Error(err))
		} else {
			a.logger.Info("object storage ready", zap.String("bucket", store.Bucket()))
		}
	}

	bus, err := mq.Open(ctx, a.cfg.MQ)
	if err != nil {
		a.logger.Warn("event bus unavailable, events dropped", zap.Error(err))
		bus = nil
	}

	return &Client{
		Auth:      auth,
		DB:        dbConn,
		Storage:   store,
		Events:    mq.NewPublisher(bus, a.logger.Named("events")),
		JWTSecret: secret,
	}, nil
}

func randomSecret() ([]byte, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return []byte(hex.EncodeToString(buf[:])), nil
}
