package auth

import "github.com/ideaspaper/reqkit/internal/constants"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv derives a default policy from the HTTP_* environment variables.
// When several are present the later match wins: an API key beats a bearer
// token, which beats basic credentials.
func FromEnv(lookup LookupFunc) Policy {
	if lookup == nil {
		return None()
	}
	get := func(k string) string {
		v, _ := lookup(k)
		return v
	}

	p := None()
	if user := get(constants.EnvUsername); user != "" {
		p = Basic(user, get(constants.EnvPassword))
	}
	if token := get(constants.EnvBearerToken); token != "" {
		p = Bearer(token)
	}
	if key := get(constants.EnvAPIKey); key != "" {
		p = APIKey(key, get(constants.EnvAPIValue), ParseLocation(get(constants.EnvAPILocation)))
	}
	return p
}
