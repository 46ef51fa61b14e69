package http

import (
	"encoding/base64"
	"net/http"

	"github.com/databridge/databridge/internal/connector"
)

// authStrategy applies an authentication variant to an outgoing request.
type authStrategy interface {
	Apply(req *http.Request)
}

type noAuth struct{}

func (noAuth) Apply(*http.Request) {}

type basicAuth struct {
	Username string
	Password string
}

func (a basicAuth) Apply(req *http.Request) {
	credentials := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	req.Header.Set("Authorization", "Basic "+credentials)
}

type bearerToken struct {
	Token string
}

func (a bearerToken) Apply(req *http.Request) {
	if a.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
}

type apiKey struct {
	Key    string
	Header string
}

func (a apiKey) Apply(req *http.Request) {
	if a.Key == "" {
		return
	}
	header := a.Header
	if header == "" {
		header = "X-API-Key"
	}
	req.Header.Set(header, a.Key)
}

// strategyFor maps the auth config variant to a strategy. An unknown or nil
// variant means no authentication.
func strategyFor(cfg *connector.AuthConfig) authStrategy {
	if cfg == nil {
		return noAuth{}
	}
	switch cfg.Type {
	case "bearer", "":
		return bearerToken{Token: cfg.Token}
	case "basic":
		return basicAuth{Username: cfg.Username, Password: cfg.Password}
	case "api_key":
		return apiKey{Key: cfg.KeyValue, Header: cfg.KeyName}
	}
	return noAuth{}
}
