package client

import (
	"net/http"

	"golang.org/x/net/proxy"
)

// defaultUserAgents is the fallback rotation pool when no pool is configured.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
}

// session holds the client's rotating identity. It is owned by the Client and
// mutated only at construction, on a locale change, or through rotateSession.
type session struct {
	host      string
	userAgent string
	headers   map[string]string
	proxyAddr string
}

func buildHeaders(host, userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
		"DNT":             "1",
		"Connection":      "keep-alive",
		"Host":            host,
	}
}

func (c *Client) newSession(host string) *session {
	ua := c.userAgents[c.rnd.Intn(len(c.userAgents))]
	s := &session{
		host:      host,
		userAgent: ua,
		headers:   buildHeaders(host, ua),
	}
	if len(c.proxies) > 0 {
		s.proxyAddr = c.proxies[c.rnd.Intn(len(c.proxies))]
	}
	return s
}

// rotateSession regenerates the session wholesale: new random user agent,
// rebuilt headers, fresh proxy pick. The cookie jar survives so a follow-up
// refresh can replace the cookies in place.
func (c *Client) rotateSession() {
	host := ""
	if c.session != nil {
		host = c.session.host
	}
	c.session = c.newSession(host)
	c.applyTransport()
	c.log.Info("session rotated", "host", host, "user_agent", c.session.userAgent, "proxy", c.session.proxyAddr != "")
}

// applyTransport rebuilds the HTTP transport to match the session's proxy
// selection. Without a proxy the default transport is used.
func (c *Client) applyTransport() {
	if c.session == nil || c.session.proxyAddr == "" {
		c.http.Transport = nil
		return
	}
	dialer, err := proxy.SOCKS5("tcp", c.session.proxyAddr, nil, proxy.Direct)
	if err != nil {
		c.log.Warn("proxy dialer setup failed, going direct", "proxy", c.session.proxyAddr, "error", err)
		c.http.Transport = nil
		return
	}
	transport := &http.Transport{}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.Dial = dialer.Dial
	}
	c.http.Transport = transport
}

// ensureSession points the session at host, creating or re-homing it as
// needed. Rotation on a locale change mirrors a fresh construction.
func (c *Client) ensureSession(host string) {
	if c.session != nil && c.session.host == host {
		return
	}
	c.session = c.newSession(host)
	c.applyTransport()
	c.log.Debug("session bound", "host", host)
}
