package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod/lib/proto"
)

// Cookie is a persisted cookie in the storageState layout Playwright uses, so
// state files can move between tools.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // unix seconds, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginState is the localStorage of one origin.
type OriginState struct {
	Origin       string      `json:"origin"`
	LocalStorage []LocalItem `json:"localStorage"`
}

// StorageState is what a returning visitor carries between sessions.
type StorageState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// Origin returns the localStorage items stored for origin.
func (s *StorageState) Origin(origin string) []LocalItem {
	if s == nil {
		return nil
	}
	for _, o := range s.Origins {
		if o.Origin == origin {
			return o.LocalStorage
		}
	}
	return nil
}

// Empty reports whether there is nothing worth seeding.
func (s *StorageState) Empty() bool {
	if s == nil {
		return true
	}
	if len(s.Cookies) > 0 {
		return false
	}
	for _, o := range s.Origins {
		if len(o.LocalStorage) > 0 {
			return false
		}
	}
	return true
}

// CookieParams converts the persisted cookies for a CDP set-cookies call.
func (s *StorageState) CookieParams() []*proto.NetworkCookieParam {
	if s == nil {
		return nil
	}
	out := make([]*proto.NetworkCookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		out = append(out, p)
	}
	return out
}

func cookiesFromProto(in []*proto.NetworkCookie) []Cookie {
	out := make([]Cookie, 0, len(in))
	for _, c := range in {
		expires := float64(c.Expires)
		if c.Session {
			expires = -1
		}
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

// ErrNoState is returned by Load when no state file exists yet.
var ErrNoState = errors.New("browser: no storage state")

// StateStore reads and writes the storage-state file. Writes go to a temp
// file that is renamed over the target, so a reader sees either the old or
// the new state, never a torn one. There is no locking; the last writer wins.
type StateStore struct {
	path string
}

// NewStateStore returns a store for path. An empty path disables persistence.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the state file path.
func (s *StateStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load reads the state file.
func (s *StateStore) Load() (*StorageState, error) {
	if s == nil || s.path == "" {
		return nil, ErrNoState
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("browser: read state %s: %w", s.path, err)
	}
	var st StorageState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("browser: decode state %s: %w", s.path, err)
	}
	return &st, nil
}

// Save atomically replaces the state file with st.
func (s *StateStore) Save(st *StorageState) error {
	if s == nil || s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("browser: encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".sift-state-*")
	if err != nil {
		return fmt.Errorf("browser: create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("browser: write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("browser: close temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("browser: replace state %s: %w", s.path, err)
	}
	return nil
}
