package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks every configuration section and returns the first
// violation found, wrapped around a sentinel error.
func (c *Config) Validate() error {
	if err := c.LLM.validate(); err != nil {
		return err
	}
	if err := c.Postgres.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	return nil
}

func (l LLM) validate() error {
	u, err := url.Parse(l.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, l.BaseURL)
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("%w: %v (want 0..2)", ErrInvalidTemperature, l.Temperature)
	}
	if l.MaxTokens <= 0 || l.MaxTokens > 128000 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, l.MaxTokens)
	}
	if l.MaxDispatchRounds < 1 || l.MaxDispatchRounds > 10 {
		return fmt.Errorf("%w: %d (want 1..10)", ErrInvalidRounds, l.MaxDispatchRounds)
	}
	if l.TurnTimeout < 10*time.Second || l.TurnTimeout > 30*time.Minute {
		return fmt.Errorf("%w: %v", ErrInvalidTimeout, l.TurnTimeout)
	}
	return nil
}

func (p Postgres) validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidPostgres)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidPostgres, p.Port)
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("%w: empty db name", ErrInvalidPostgres)
	}
	switch p.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: ssl mode %q", ErrInvalidPostgres, p.SSLMode)
	}
	return nil
}

func (s Session) validate() error {
	if s.TTL < time.Minute || s.TTL > 24*time.Hour {
		return fmt.Errorf("%w: %v", ErrInvalidSessionTTL, s.TTL)
	}
	if s.SweepInterval < time.Second || s.SweepInterval > s.TTL {
		return fmt.Errorf("%w: sweep interval %v", ErrInvalidSessionTTL, s.SweepInterval)
	}
	if s.HistoryWindow < 1 || s.HistoryWindow > MaxHistoryWindow {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidHistory, s.HistoryWindow, MaxHistoryWindow)
	}
	return nil
}
