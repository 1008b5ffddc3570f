// Package model defines shared types for the gateway.
package model

import (
	"context"
	"net/http"
)

// ProxyRequest is one inbound call re-targeted at the upstream service.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	TargetPath string // upstream-relative, path parameters already escaped
	RawQuery   string
	Header     http.Header
	Body       []byte
	ClientIP   string // direct peer, appended to X-Forwarded-For
}

// ProxyResponse is the upstream answer to be relayed to the caller.
// Body holds the decoded payload; it is empty only for 204 and 304 responses.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
