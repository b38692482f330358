package response

// IsInformational reports a 1xx status.
func IsInformational(code int) bool { return code >= 100 && code < 200 }

// IsSuccess reports a 2xx status.
func IsSuccess(code int) bool { return code >= 200 && code < 300 }

// IsRedirection reports a 3xx status.
func IsRedirection(code int) bool { return code >= 300 && code < 400 }

// IsClientError reports a 4xx status.
func IsClientError(code int) bool { return code >= 400 && code < 500 }

// IsServerError reports a 5xx status.
func IsServerError(code int) bool { return code >= 500 && code < 600 }

// IsRedirectStatus reports whether code is one the executor follows.
func IsRedirectStatus(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}
