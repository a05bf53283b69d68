package crawler

import "strings"

// ClassifyNavigationError maps a raw navigation error message onto the closed
// error taxonomy. The substring checks cover both Chromium net:: errors and
// Go net/http failures for the same condition. Classification is a pure
// function of the message text.
func ClassifyNavigationError(message string) ErrorCode {
	msg := strings.ToLower(message)

	switch {
	case containsAny(msg,
		"err_too_many_redirects",
		"too many redirects",
		"stopped after",
	):
		return CodeTooManyRedirects
	case containsAny(msg,
		"err_proxy",
		"err_tunnel_connection_failed",
		"proxy",
	):
		return CodeProxyError
	case containsAny(msg,
		"err_cert",
		"err_ssl",
		"ssl",
		"tls",
		"x509",
		"certificate",
	):
		return CodeSSLError
	case containsAny(msg,
		"err_name_not_resolved",
		"err_name_resolution_failed",
		"no such host",
		"enotfound",
		"dns",
	):
		return CodeDNSError
	case containsAny(msg,
		"err_connection_refused",
		"err_connection_reset",
		"err_connection_closed",
		"connection refused",
		"connection reset",
		"econnrefused",
		"econnreset",
	):
		return CodeConnectionRefused
	case containsAny(msg,
		"err_timed_out",
		"err_connection_timed_out",
		"timeout",
		"timed out",
		"deadline exceeded",
	):
		return CodeTimeout
	default:
		return CodeUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
