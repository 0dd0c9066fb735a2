package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/avivago/avivago-backend/pkg/config"
	"github.com/avivago/avivago-backend/pkg/errors"
	pkghttp "github.com/avivago/avivago-backend/pkg/httputil"
	"github.com/avivago/avivago-backend/pkg/logger"
)

// Proxy handles reverse proxying to backend services
type Proxy struct {
	log           *logger.Logger
	identityProxy *httputil.ReverseProxy
	accountProxy  *httputil.ReverseProxy
}

// NewProxy creates a new proxy instance
func NewProxy(services config.ServicesConfig, log *logger.Logger) (*Proxy, error) {
	p := &Proxy{log: log}

	var err error
	if p.identityProxy, err = p.createProxy(services.IdentityServiceURL); err != nil {
		return nil, fmt.Errorf("identity service: %w", err)
	}
	if p.accountProxy, err = p.createProxy(services.AccountServiceURL); err != nil {
		return nil, fmt.Errorf("account service: %w", err)
	}

	return p, nil
}

func (p *Proxy) createProxy(targetURL string) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", targetURL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid url %q: scheme and host required", targetURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = target.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		p.log.Error().Err(err).Str("path", r.URL.Path).Str("target", target.Host).Msg("proxy error")
		pkghttp.ErrorLocalized(w, r, errors.New("SERVICE_UNAVAILABLE", "service unavailable", http.StatusBadGateway).
			WithMessageKey("errors.service_unavailable"))
	}

	return proxy, nil
}

// ForwardToIdentity forwards requests to the identity service
func (p *Proxy) ForwardToIdentity(w http.ResponseWriter, r *http.Request) {
	p.identityProxy.ServeHTTP(w, r)
}

// ForwardToAccount forwards requests to the account service
func (p *Proxy) ForwardToAccount(w http.ResponseWriter, r *http.Request) {
	p.accountProxy.ServeHTTP(w, r)
}
