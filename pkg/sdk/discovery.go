package sdk

import (
	"fmt"

	"github.com/celerix-dev/nestsync/internal/cache"
	"github.com/celerix-dev/nestsync/internal/config"
	"github.com/celerix-dev/nestsync/internal/logging"
	"github.com/celerix-dev/nestsync/pkg/sdk/remote"
)

// New builds a Session from cfg. Without a store URL the session runs in local-only mode:
// writes stay in the cache and every read is served from it.
func New(cfg config.Client) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var key []byte
	if cfg.CacheKey != "" {
		key = []byte(cfg.CacheKey)
	}
	p, err := cache.NewPersistence(cfg.CacheDir, key)
	if err != nil {
		return nil, err
	}
	c, err := cache.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	var rs remote.RecordStore = remote.Offline{}
	if cfg.StoreURL != "" {
		opts := []remote.Option{
			remote.WithTimeout(cfg.Timeout),
			remote.WithPageSize(cfg.PageSize),
		}
		if cfg.TLSInsecure {
			opts = append(opts, remote.WithInsecureTLS())
		}
		client, err := remote.NewClient(cfg.StoreURL, opts...)
		if err != nil {
			return nil, err
		}
		rs = client
	} else {
		logging.Info("no record store configured, running local-only", logging.Fields{"cache_dir": cfg.CacheDir})
	}

	debounceFor := cfg.Debounce
	if debounceFor == 0 {
		// NESTSYNC_DEBOUNCE=0 asks for immediate pushes; a zero Options value means the default.
		debounceFor = -1
	}
	return NewSession(c, rs, Options{
		Debounce:      debounceFor,
		MessageWindow: cfg.MessageWindow,
	}), nil
}

// NewFromEnv is New with the configuration read from NESTSYNC_* environment variables.
func NewFromEnv() (*Session, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}
