// Package auth describes how a request authenticates and resolves that
// description into a concrete credential.
package auth

import (
	"encoding/base64"
	"strings"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

// Kind identifies an auth variant.
type Kind int

const (
	KindNone Kind = iota
	KindBasic
	KindBearer
	KindAPIKey
	KindDigest
	KindOAuth2
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindBearer:
		return "bearer"
	case KindAPIKey:
		return "apikey"
	case KindDigest:
		return "digest"
	case KindOAuth2:
		return "oauth2"
	case KindCustom:
		return "custom"
	default:
		return "none"
	}
}

// Location says where an API key is placed.
type Location int

const (
	InHeader Location = iota
	InQuery
	InBody
)

// ParseLocation maps "query" and "body" to their locations; anything else is InHeader.
func ParseLocation(s string) Location {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "query":
		return InQuery
	case "body":
		return InBody
	default:
		return InHeader
	}
}

// Policy is a closed set of auth variants. Build one with the constructors;
// the zero value is None.
type Policy struct {
	kind Kind

	username string
	password string
	realm    string

	token     string
	tokenType string

	key      string
	value    string
	location Location

	scheme      string
	credentials string
}

// None performs no authentication.
func None() Policy { return Policy{} }

// Basic authenticates with a username and password.
func Basic(username, password string) Policy {
	return Policy{kind: KindBasic, username: username, password: password}
}

// Bearer sends "Authorization: Bearer <token>".
func Bearer(token string) Policy {
	return Policy{kind: KindBearer, token: token}
}

// APIKey places key and value in a header, the query string or a form body.
func APIKey(key, value string, loc Location) Policy {
	return Policy{kind: KindAPIKey, key: key, value: value, location: loc}
}

// Digest records digest credentials. Resolving it produces no credential.
func Digest(username, password, realm string) Policy {
	return Policy{kind: KindDigest, username: username, password: password, realm: realm}
}

// OAuth2 sends "<tokenType> <token>". An empty tokenType means Bearer.
func OAuth2(token, tokenType string) Policy {
	if tokenType == "" {
		tokenType = constants.AuthSchemeBearer
	}
	return Policy{kind: KindOAuth2, token: token, tokenType: tokenType}
}

// Custom sends "<scheme> <credentials>".
func Custom(scheme, credentials string) Policy {
	return Policy{kind: KindCustom, scheme: scheme, credentials: credentials}
}

// GitHub returns the Bearer policy GitHub's API expects.
func GitHub(token string) Policy { return Bearer(token) }

// GoogleCloud returns an OAuth2 Bearer policy for Google Cloud APIs.
func GoogleCloud(accessToken string) Policy { return OAuth2(accessToken, constants.AuthSchemeBearer) }

// Kind returns the variant.
func (p Policy) Kind() Kind { return p.kind }

// IsNone reports whether p performs no authentication.
func (p Policy) IsNone() bool { return p.kind == KindNone }

// Merge returns other unless it is None, in which case p is kept.
func (p Policy) Merge(other Policy) Policy {
	if other.IsNone() {
		return p
	}
	return other
}

// Target tells the executor where a resolved credential goes.
type Target int

const (
	TargetNone Target = iota
	TargetHeader
	TargetQuery
	TargetBody
)

// Credential is the resolved form of a Policy.
//
// For TargetHeader, Name is the header and Value its full value. For
// TargetQuery and TargetBody, Name and Value form one key/value pair.
type Credential struct {
	Target Target
	Name   string
	Value  string
}

// Resolve turns the policy into a credential. It is pure: the same policy
// always yields the same credential.
func (p Policy) Resolve() (Credential, error) {
	switch p.kind {
	case KindNone, KindDigest:
		return Credential{}, nil

	case KindBasic:
		if p.username == "" {
			return Credential{}, errors.NewAuthError("basic", "username is required")
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(p.username + ":" + p.password))
		return header(constants.AuthSchemeBasic + " " + encoded)

	case KindBearer:
		if p.token == "" {
			return Credential{}, errors.NewAuthError("bearer", "token is required")
		}
		return headerChecked("bearer", constants.AuthSchemeBearer+" "+p.token)

	case KindOAuth2:
		if p.token == "" {
			return Credential{}, errors.NewAuthError("oauth2", "token is required")
		}
		return headerChecked("oauth2", p.tokenType+" "+p.token)

	case KindCustom:
		if p.scheme == "" {
			return Credential{}, errors.NewAuthError("custom", "scheme is required")
		}
		return headerChecked("custom", p.scheme+" "+p.credentials)

	case KindAPIKey:
		if p.key == "" {
			return Credential{}, errors.NewAuthError("apikey", "key is required")
		}
		switch p.location {
		case InQuery:
			return Credential{Target: TargetQuery, Name: p.key, Value: p.value}, nil
		case InBody:
			return Credential{Target: TargetBody, Name: p.key, Value: p.value}, nil
		default:
			return headerChecked("apikey", p.key+" "+p.value)
		}
	}
	return Credential{}, errors.NewAuthError("", "unknown auth kind")
}

func header(value string) (Credential, error) {
	return Credential{Target: TargetHeader, Name: constants.HeaderAuthorization, Value: value}, nil
}

func headerChecked(scheme, value string) (Credential, error) {
	if strings.ContainsAny(value, "\r\n") {
		return Credential{}, errors.NewAuthError(scheme, "credential contains a line break")
	}
	return header(value)
}
