// Package constants provides common constants used throughout the application.
package constants

import "time"

// HTTP Header names (canonical form)
const (
	HeaderContentType     = "Content-Type"
	HeaderAuthorization   = "Authorization"
	HeaderAccept          = "Accept"
	HeaderContentLength   = "Content-Length"
	HeaderContentEncoding = "Content-Encoding"
	HeaderCookie          = "Cookie"
	HeaderSetCookie       = "Set-Cookie"
	HeaderUserAgent       = "User-Agent"
	HeaderLocation        = "Location"
	HeaderProxyAuth       = "Proxy-Authorization"
)

// MIME types
const (
	MIMEApplicationJSON           = "application/json"
	MIMEApplicationFormURLEncoded = "application/x-www-form-urlencoded"
	MIMETextPlain                 = "text/plain; charset=utf-8"
	MIMEOctetStream               = "application/octet-stream"
)

// Authentication schemes
const (
	AuthSchemeBearer = "Bearer"
	AuthSchemeBasic  = "Basic"
)

// HTTP Methods
const (
	MethodGET     = "GET"
	MethodPOST    = "POST"
	MethodPUT     = "PUT"
	MethodDELETE  = "DELETE"
	MethodPATCH   = "PATCH"
	MethodHEAD    = "HEAD"
	MethodOPTIONS = "OPTIONS"
)

// Environment variables read once at startup.
const (
	EnvUsername    = "HTTP_USERNAME"
	EnvPassword    = "HTTP_PASSWORD"
	EnvBearerToken = "HTTP_BEARER_TOKEN"
	EnvAPIKey      = "HTTP_API_KEY"
	EnvAPIValue    = "HTTP_API_VALUE"
	EnvAPILocation = "HTTP_API_LOCATION"
	EnvHTTPProxy   = "HTTP_PROXY"
	EnvHTTPSProxy  = "HTTPS_PROXY"
	EnvNoProxy     = "NO_PROXY"
)

// Default values
const (
	AppName               = "reqkit"
	Version               = "0.1.0"
	DefaultUserAgent      = AppName + "/" + Version
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultPoolIdle       = 90 * time.Second
	DefaultMaxRedirects   = 10
	DefaultChunkSize      = 32 * 1024
	MultipartBoundaryBase = "----Boundary"
)
