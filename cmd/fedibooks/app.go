package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/astrikos/fedibooks/internal/activitypub"
	"github.com/astrikos/fedibooks/internal/config"
	"github.com/astrikos/fedibooks/internal/fedi"
	"github.com/astrikos/fedibooks/internal/htmltext"
	"github.com/astrikos/fedibooks/internal/logging"
	"github.com/astrikos/fedibooks/internal/markov"
	"github.com/astrikos/fedibooks/internal/ratelimit"
	"github.com/astrikos/fedibooks/internal/store"
)

// app holds the long-lived services shared by the subcommands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  *store.Store
	fedi   *fedi.Client
	ap     *activitypub.Client
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	limited := &http.Client{
		Timeout: cfg.HTTPTimeout(),
		Transport: ratelimit.New(nil, ratelimit.Config{
			PerHostRPS: cfg.HTTP.PerHostRPS,
		}),
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		fedi:   fedi.New(cfg.Site.BaseURL, cfg.Site.AccessToken, cfg.Site.UserAgent, limited, logger),
		ap: activitypub.NewClient(limited, activitypub.Config{
			UserAgent:  cfg.Site.UserAgent,
			MaxRetries: cfg.HTTP.MaxRetries,
			Backoff:    cfg.BackoffInitial(),
		}, logger),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// generate builds a fresh model over the stored corpus and produces one
// post body.
func (a *app) generate(ctx context.Context) (string, error) {
	corpus, err := a.store.Content(ctx, a.cfg.Fetch.LearnFromCW)
	if err != nil {
		return "", err
	}
	model, err := markov.New(corpus, nil)
	if err != nil {
		return "", fmt.Errorf("train model: %w", err)
	}
	text, err := model.Sentence(markov.Constraints{MaxChars: a.cfg.Post.MaxLength})
	if err != nil {
		return "", err
	}
	if a.cfg.Post.StripPairedPunctuation {
		text = htmltext.StripPairedPunctuation(text)
	}
	return text, nil
}

// qualifiedHandle turns a platform acct into user@instance; local
// accounts come back without a domain, which means the bot's own
// instance.
func qualifiedHandle(acct, siteBaseURL string) string {
	if strings.Contains(acct, "@") {
		return acct
	}
	if u, err := url.Parse(siteBaseURL); err == nil && u.Hostname() != "" {
		return acct + "@" + u.Hostname()
	}
	return acct
}
