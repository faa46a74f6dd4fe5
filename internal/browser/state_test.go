package browser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestStateStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	store := NewStateStore(path)

	if _, err := store.Load(); !errors.Is(err, ErrNoState) {
		t.Fatalf("expected ErrNoState before first save, got %v", err)
	}

	st := &StorageState{
		Cookies: []Cookie{{Name: "kl", Value: "us-en", Domain: ".duckduckgo.com", Path: "/", Expires: -1, Secure: true, SameSite: "Lax"}},
		Origins: []OriginState{{Origin: "https://duckduckgo.com", LocalStorage: []LocalItem{{Name: "ddg_settings", Value: "{}"}}}},
	}
	if err := store.Save(st); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got.Cookies) != 1 || got.Cookies[0].Value != "us-en" || got.Cookies[0].SameSite != "Lax" {
		t.Errorf("unexpected cookies %+v", got.Cookies)
	}
	if items := got.Origin("https://duckduckgo.com"); len(items) != 1 || items[0].Name != "ddg_settings" {
		t.Errorf("unexpected localStorage %+v", items)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestStateStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStateStore(path).Load(); err == nil || errors.Is(err, ErrNoState) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestStateStore_Disabled(t *testing.T) {
	store := NewStateStore("")
	if err := store.Save(&StorageState{}); err != nil {
		t.Errorf("disabled store should ignore saves, got %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoState) {
		t.Errorf("disabled store should report ErrNoState, got %v", err)
	}
}

func TestCookieConversion(t *testing.T) {
	in := []*proto.NetworkCookie{
		{Name: "session", Value: "a", Domain: "duckduckgo.com", Path: "/", Session: true, HTTPOnly: true},
		{Name: "persist", Value: "b", Domain: "duckduckgo.com", Path: "/", Expires: 1900000000, SameSite: proto.NetworkCookieSameSiteStrict},
	}
	cookies := cookiesFromProto(in)
	if cookies[0].Expires != -1 || !cookies[0].HTTPOnly {
		t.Errorf("session cookie not marked: %+v", cookies[0])
	}
	if cookies[1].Expires != 1900000000 || cookies[1].SameSite != "Strict" {
		t.Errorf("persistent cookie mangled: %+v", cookies[1])
	}

	params := (&StorageState{Cookies: cookies}).CookieParams()
	if params[0].Expires != 0 {
		t.Errorf("session cookie should not carry an expiry, got %v", params[0].Expires)
	}
	if params[1].Expires != proto.TimeSinceEpoch(1900000000) || params[1].SameSite != proto.NetworkCookieSameSiteStrict {
		t.Errorf("unexpected param %+v", params[1])
	}
}

func TestStorageState_Empty(t *testing.T) {
	var nilState *StorageState
	if !nilState.Empty() {
		t.Errorf("nil state should be empty")
	}
	if !(&StorageState{Origins: []OriginState{{Origin: "x"}}}).Empty() {
		t.Errorf("origin without items should be empty")
	}
	if (&StorageState{Cookies: []Cookie{{Name: "a"}}}).Empty() {
		t.Errorf("state with a cookie is not empty")
	}
}
