package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// originPolicy is the WebSocket origin allow-list. "*" allows every origin.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   zerolog.Logger
}

func newOriginPolicy(origins []string, logger zerolog.Logger) *originPolicy {
	p := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		logger:  logger,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			p.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn().Str("origin", origin).Msg("Ignoring invalid origin in configuration")
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p *originPolicy) allows(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}

	_, exists := p.allowed[normalized]
	return exists
}

func (p *originPolicy) check(r *http.Request) bool {
	if p.allows(r) {
		return true
	}

	p.logger.Warn().Str("origin", r.Header.Get("Origin")).Msg("Blocked WebSocket connection from disallowed origin")
	return false
}
