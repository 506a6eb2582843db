package netx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.9:40000", "203.0.113.9"},
		{"203.0.113.9", "203.0.113.9"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"2001:db8::1", "2001:db8::1"},
		{"  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Host(tt.in), tt.in)
	}
}

func TestParseTrustedProxies(t *testing.T) {
	p, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "::1"})
	require.NoError(t, err)

	assert.True(t, p.Trusts("10.20.30.40"))
	assert.True(t, p.Trusts("192.168.1.5"))
	assert.True(t, p.Trusts("::1"))
	assert.False(t, p.Trusts("192.168.1.6"))
	assert.False(t, p.Trusts("not-an-ip"))

	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestClientIP_PortDoesNotSplitClients(t *testing.T) {
	var none *TrustedProxies
	seen := map[string]bool{}
	for _, addr := range []string{"203.0.113.9:40000", "203.0.113.9:40001", "203.0.113.9:40009"} {
		seen[none.ClientIP(addr, "")] = true
	}
	assert.Equal(t, map[string]bool{"203.0.113.9": true}, seen)
}

func TestClientIP_ForwardedForNeedsTrustedPeer(t *testing.T) {
	p, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"untrusted peer spoofing", "198.51.100.1:5000", "1.2.3.4", "198.51.100.1"},
		{"trusted peer", "10.0.0.1:5555", "198.51.100.7", "198.51.100.7"},
		{"chain through trusted hops", "10.0.0.1:5555", "1.2.3.4, 198.51.100.7, 10.0.0.2", "198.51.100.7"},
		{"all hops trusted", "10.0.0.1:5555", "10.0.0.3, 10.0.0.2", "10.0.0.3"},
		{"garbage hop", "10.0.0.1:5555", "1.2.3.4, nonsense", "10.0.0.1"},
		{"no header", "10.0.0.1:5555", "", "10.0.0.1"},
		{"no remote", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ClientIP(tt.remote, tt.xff))
		})
	}
}
