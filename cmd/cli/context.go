package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"anipink/internal/ai"
	"anipink/internal/backend"
	"anipink/internal/session"
	"anipink/pkg/logging"
	"anipink/pkg/utils"
)

type commandContext struct {
	apiFlag   *string
	guestFlag *bool

	configOnce sync.Once
	config     utils.ClientConfig
	aiConfig   utils.AIConfig
	configErr  error

	client *backend.RelayClient
	gate   *session.Gate
}

func newCommandContext(apiFlag *string, guestFlag *bool) *commandContext {
	return &commandContext{apiFlag: apiFlag, guestFlag: guestFlag}
}

func (c *commandContext) ensureConfig() (utils.ClientConfig, error) {
	c.configOnce.Do(func() {
		cfg, err := utils.LoadClientConfig()
		if err != nil {
			c.configErr = err
			return
		}
		if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
			cfg.APIURL = strings.TrimSpace(*c.apiFlag)
		}
		aiCfg, err := utils.LoadAIConfig()
		if err != nil {
			c.configErr = err
			return
		}
		logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console"})

		c.config = cfg
		c.aiConfig = aiCfg
		c.client = backend.NewRelayClient(cfg.APIURL)
		c.gate = session.NewGate(c.client)
	})
	return c.config, c.configErr
}

// resume signs the saved account back in. Tokens the relay no longer
// accepts are forgotten.
func (c *commandContext) resume(ctx context.Context, stderr io.Writer) {
	saved, ok, err := session.LoadToken(c.config.TokenPath)
	if err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
		return
	}
	if !ok {
		return
	}
	err = c.gate.Resume(ctx, saved)
	switch {
	case err == nil:
		return
	case errors.Is(err, backend.ErrUnavailable):
		fmt.Fprintln(stderr, "warning: relay unreachable, using the guest list")
		return
	}
	if msg := c.gate.Message(); msg != "" {
		fmt.Fprintln(stderr, msg)
	} else {
		fmt.Fprintf(stderr, "signed out: %v\n", err)
	}
	_ = session.ClearToken(c.config.TokenPath)
}

// withSession opens the tracker for the signed-in account, or the guest
// list when nobody is signed in, and closes it once fn returns.
func (c *commandContext) withSession(ctx context.Context, stderr io.Writer, fn func(*session.Session) error) (err error) {
	opts := session.Options{Client: c.client, Advisor: ai.New(c.aiConfig)}
	if c.guestFlag == nil || !*c.guestFlag {
		c.resume(ctx, stderr)
		opts.Gate = c.gate
	}
	if opts.Gate == nil || c.gate.State() != session.Active {
		kv, err := backend.OpenBadgerKV(c.config.GuestDir)
		if err != nil {
			return fmt.Errorf("open guest store: %w", err)
		}
		opts.GuestKV = kv
	}

	s, err := session.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
