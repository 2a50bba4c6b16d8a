// Package steam serves player catalog and profile documents from a disk
// cache, refreshing them from the upstream web API once they go stale.
package steam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dkeye/GameFinder/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidID = errors.New("invalid id")
	ErrUpstream  = errors.New("upstream")
)

var steamIDPattern = regexp.MustCompile(`^[0-9]+$`)

// Resource is one cached upstream document kind.
type Resource struct {
	Name  string
	TTL   time.Duration
	path  string
	query func(key, steamID string) url.Values
}

// Client is safe for concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	cacheDir string
	fs       afero.Fs
	http     *http.Client
	timeout  time.Duration
	group    singleflight.Group
	now      func() time.Time

	PlayedGames Resource
	User        Resource
}

func NewClient(cfg config.Steam, fs afero.Fs, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		cacheDir: cfg.CacheDir,
		fs:       fs,
		http:     hc,
		timeout:  cfg.Timeout,
		now:      time.Now,
		PlayedGames: Resource{
			Name: "played-games",
			TTL:  cfg.GamesTTL,
			path: "/IPlayerService/GetOwnedGames/v0001/",
			query: func(key, steamID string) url.Values {
				return url.Values{
					"key":                       {key},
					"steamid":                   {steamID},
					"format":                    {"json"},
					"include_appinfo":           {"true"},
					"include_played_free_games": {"true"},
				}
			},
		},
		User: Resource{
			Name: "user",
			TTL:  cfg.UserTTL,
			path: "/ISteamUser/GetPlayerSummaries/v0002/",
			query: func(key, steamID string) url.Values {
				return url.Values{
					"key":      {key},
					"steamids": {steamID},
					"format":   {"json"},
				}
			},
		},
	}
}

// Get returns the document for steamID, from cache while it is fresh.
// A shared refresh outlives any single caller; ctx only bounds how long
// this caller waits for it.
func (c *Client) Get(ctx context.Context, res Resource, steamID string) ([]byte, error) {
	if !steamIDPattern.MatchString(steamID) {
		return nil, ErrInvalidID
	}
	cachePath := filepath.Join(c.cacheDir, res.Name, steamID+".json")

	if body, ok := c.readFresh(cachePath, res.TTL); ok {
		return body, nil
	}

	ch := c.group.DoChan(cachePath, func() (any, error) {
		if body, ok := c.readFresh(cachePath, res.TTL); ok {
			return body, nil
		}
		fctx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.timeout)
			defer cancel()
		}
		body, err := c.fetch(fctx, res, steamID)
		if err != nil {
			return nil, err
		}
		if err := c.store(cachePath, body); err != nil {
			log.Warn().Err(err).Str("module", "adapters.steam").Str("path", cachePath).Msg("cache write failed")
		}
		return body, nil
	})

	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.Err != nil {
		return nil, r.Err
	}
	log.Debug().Str("module", "adapters.steam").Str("resource", res.Name).Str("steamid", steamID).Bool("shared", r.Shared).Msg("fetched")
	return r.Val.([]byte), nil
}

func (c *Client) readFresh(path string, ttl time.Duration) ([]byte, bool) {
	info, err := c.fs.Stat(path)
	if err != nil || info.ModTime().Add(ttl).Before(c.now()) {
		return nil, false
	}
	body, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, false
	}
	return body, true
}

func (c *Client) fetch(ctx context.Context, res Resource, steamID string) ([]byte, error) {
	u := c.baseURL + res.path + "?" + res.query(c.apiKey, steamID).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return body, nil
}

// store writes through a temp file so readers never see a partial document.
func (c *Client) store(path string, body []byte) error {
	if err := c.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := afero.TempFile(c.fs, filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = c.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = c.fs.Remove(tmp.Name())
		return err
	}
	return c.fs.Rename(tmp.Name(), path)
}
