package llm

import (
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// proxyFunc selects the proxy for provider requests. Configured proxies take
// precedence over HTTP_PROXY/HTTPS_PROXY; NO_PROXY always comes from the
// environment.
func proxyFunc(c Config) func(*http.Request) (*url.URL, error) {
	pc := httpproxy.FromEnvironment()
	if c.HTTPProxy != "" {
		pc.HTTPProxy = c.HTTPProxy
	}
	if c.HTTPSProxy != "" {
		pc.HTTPSProxy = c.HTTPSProxy
	}
	fn := pc.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return fn(req.URL)
	}
}
