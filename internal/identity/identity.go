package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Embedded identity used when no snapshot file can be read.
const (
	EmbeddedUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) " +
		"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"
	EmbeddedCookieHeader = "NNB=ABCDEF; nx_ssl=2"
)

// Source tells which level of the fallback chain produced an identity.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
	SourceEmbedded  Source = "embedded"
)

// Identity is what a browser session presents to the search front end.
type Identity struct {
	UserAgent    string
	CookieHeader string
	Source       Source
}

// ErrInvalidSnapshot is returned for snapshot files without a user agent.
var ErrInvalidSnapshot = errors.New("identity snapshot has no user agent")

type snapshot struct {
	UA      string `json:"ua"`
	Cookies []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"cookies"`
}

// Provider resolves an identity from local snapshot files.
type Provider struct {
	primary   string
	secondary string
	readFile  func(string) ([]byte, error)
	logger    *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger. Cookie values are never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithReadFile replaces os.ReadFile.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(p *Provider) {
		if fn != nil {
			p.readFile = fn
		}
	}
}

// NewProvider creates a Provider reading primary, then secondary.
// Either path may be empty to skip that level.
func NewProvider(primary, secondary string, opts ...Option) *Provider {
	p := &Provider{
		primary:   primary,
		secondary: secondary,
		readFile:  os.ReadFile,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Identity returns the first usable identity of the fallback chain.
// It never fails: the embedded identity is returned when both snapshot
// files are missing or unreadable.
func (p *Provider) Identity() Identity {
	levels := []struct {
		path   string
		source Source
	}{
		{p.primary, SourcePrimary},
		{p.secondary, SourceSecondary},
	}

	for _, lv := range levels {
		if lv.path == "" {
			continue
		}
		id, err := p.load(lv.path)
		if err != nil {
			p.logger.Warn("identity snapshot unusable, falling back",
				"source", string(lv.source), "path", lv.path, "error", err)
			continue
		}
		id.Source = lv.source
		p.logger.Debug("identity loaded", "source", string(lv.source), "path", lv.path)
		return id
	}

	p.logger.Warn("using embedded identity")
	return Identity{
		UserAgent:    EmbeddedUserAgent,
		CookieHeader: EmbeddedCookieHeader,
		Source:       SourceEmbedded,
	}
}

func (p *Provider) load(path string) (Identity, error) {
	data, err := p.readFile(path)
	if err != nil {
		return Identity{}, err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Identity{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if strings.TrimSpace(snap.UA) == "" {
		return Identity{}, ErrInvalidSnapshot
	}

	pairs := make([]string, 0, len(snap.Cookies))
	for _, c := range snap.Cookies {
		if c.Name == "" {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}

	return Identity{
		UserAgent:    snap.UA,
		CookieHeader: strings.Join(pairs, "; "),
	}, nil
}
