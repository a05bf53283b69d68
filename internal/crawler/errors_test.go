package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyNavigationError(t *testing.T) {
	cases := []struct {
		message string
		want    ErrorCode
	}{
		{"net::ERR_CONNECTION_REFUSED", CodeConnectionRefused},
		{"dial tcp 127.0.0.1:80: connect: connection refused", CodeConnectionRefused},
		{"read: connection reset by peer", CodeConnectionRefused},
		{"net::ERR_NAME_NOT_RESOLVED", CodeDNSError},
		{"lookup example.invalid: no such host", CodeDNSError},
		{"net::ERR_CERT_AUTHORITY_INVALID", CodeSSLError},
		{"x509: certificate signed by unknown authority", CodeSSLError},
		{"tls: handshake failure", CodeSSLError},
		{"net::ERR_TOO_MANY_REDIRECTS", CodeTooManyRedirects},
		{"Get \"http://example.com\": stopped after 10 redirects", CodeTooManyRedirects},
		{"net::ERR_PROXY_CONNECTION_FAILED", CodeProxyError},
		{"net::ERR_TUNNEL_CONNECTION_FAILED", CodeProxyError},
		{"net::ERR_TIMED_OUT", CodeTimeout},
		{"context deadline exceeded", CodeTimeout},
		{"something entirely different happened", CodeUnknown},
		{"", CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyNavigationError(tc.message))
		})
	}
}

// Redirect classification wins over connection classification when both
// substrings appear, since redirect loops often surface nested dial errors.
func TestClassifyNavigationErrorPrecedence(t *testing.T) {
	got := ClassifyNavigationError("stopped after 10 redirects: connection refused")
	require.Equal(t, CodeTooManyRedirects, got)
}
