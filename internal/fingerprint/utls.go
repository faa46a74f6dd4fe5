package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	utls "github.com/refraction-networking/utls"

	"github.com/FranksOps/sift/pkg/useragent"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
	ProfileAuto    Profile = "auto"   // match the request's User-Agent
)

// Options tune the transports built by Transport and Set.
type Options struct {
	// Proxy, if set, becomes the transport's Proxy func.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

// ForUserAgent picks the ClientHello family a server would expect from ua.
// Crawlers are real Go/Python/C++ stacks rather than browsers, so they get Go's
// own handshake.
func ForUserAgent(ua string) Profile {
	switch {
	case ua == "":
		return ProfileChrome
	case useragent.IsCrawler(ua):
		return ProfileGo
	case strings.Contains(ua, "Firefox/"):
		return ProfileFirefox
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "Edg/"):
		return ProfileChrome
	case strings.Contains(ua, "Safari/"):
		return ProfileSafari
	default:
		return ProfileChrome
	}
}

// Transport returns an http.RoundTripper configured with the specified
// TLS fingerprint profile. If the profile is "go", it returns a standard
// http.Transport. Otherwise, it wraps http.Transport to use utls.UClient.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	var clientHelloID utls.ClientHelloID
	switch p {
	case ProfileChrome:
		clientHelloID = utls.HelloChrome_Auto
	case ProfileFirefox:
		clientHelloID = utls.HelloFirefox_Auto
	case ProfileSafari:
		clientHelloID = utls.HelloIOS_Auto
	case ProfileRandom:
		clientHelloID = utls.HelloRandomizedNoALPN
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn := newUClient(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}, clientHelloID)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake failed: %w", err)
		}

		return uConn, nil
	}

	return transport, nil
}

// newUClient builds a uTLS client that never offers h2. The browser presets
// advertise h2, but net/http cannot speak h2 over a non-crypto/tls conn, so a
// server that picks h2 would break the request. Presets get their ALPN pinned
// to http/1.1; IDs without a static spec, such as the randomized ones, fall
// back to a randomized hello that sends no ALPN at all.
func newUClient(conn net.Conn, cfg *utls.Config, id utls.ClientHelloID) *utls.UConn {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return utls.UClient(conn, cfg, utls.HelloRandomizedNoALPN)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return utls.UClient(conn, cfg, utls.HelloRandomizedNoALPN)
	}
	return uConn
}

// Set is a RoundTripper that routes each request through a transport whose
// TLS fingerprint matches the request's User-Agent, building one transport
// per profile on first use so connection pools are reused.
type Set struct {
	fixed Profile
	opts  Options

	mu         sync.Mutex
	transports map[Profile]http.RoundTripper
}

// NewSet returns a Set. A fixed profile other than "" or ProfileAuto pins every
// request to that profile.
func NewSet(fixed Profile, opts Options) (*Set, error) {
	if fixed == "" {
		fixed = ProfileAuto
	}
	s := &Set{fixed: fixed, opts: opts, transports: make(map[Profile]http.RoundTripper)}
	if fixed != ProfileAuto {
		if _, err := s.transport(fixed); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ProfileFor reports the profile a request with ua would use.
func (s *Set) ProfileFor(ua string) Profile {
	if s.fixed != ProfileAuto {
		return s.fixed
	}
	return ForUserAgent(ua)
}

// RoundTrip implements http.RoundTripper.
func (s *Set) RoundTrip(req *http.Request) (*http.Response, error) {
	rt, err := s.transport(s.ProfileFor(req.Header.Get("User-Agent")))
	if err != nil {
		return nil, err
	}
	return rt.RoundTrip(req)
}

func (s *Set) transport(p Profile) (http.RoundTripper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.transports[p]; ok {
		return rt, nil
	}
	rt, err := Transport(p, s.opts)
	if err != nil {
		return nil, err
	}
	s.transports[p] = rt
	return rt, nil
}
