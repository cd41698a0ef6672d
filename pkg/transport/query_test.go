package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReceiveQueryEncode(t *testing.T) {
	tests := []struct {
		name string
		in   ReceiveQuery
		want string
	}{
		{
			name: "escapes id and groups",
			in: ReceiveQuery{
				Transport:      "longPolling",
				ConnectionID:   "a b",
				MessageID:      12,
				HasMessageID:   true,
				Groups:         []string{"g1", "g2"},
				ConnectionData: "[\"chat\"]",
			},
			want: "?transport=longPolling&connectionId=a%20b&messageId=12&groups=g1%2Cg2&connectionData=[\"chat\"]",
		},
		{
			name: "unset cursor renders empty",
			in:   ReceiveQuery{Transport: "serverSentEvents", ConnectionID: "id"},
			want: "?transport=serverSentEvents&connectionId=id&messageId=&groups=&connectionData=",
		},
		{
			name: "zero cursor is not unset",
			in:   ReceiveQuery{Transport: "longPolling", ConnectionID: "id", HasMessageID: true},
			want: "?transport=longPolling&connectionId=id&messageId=0&groups=&connectionData=",
		},
		{
			name: "reserved characters",
			in:   ReceiveQuery{Transport: "longPolling", ConnectionID: "a&b=c+d/e?f", Groups: []string{"x y", "z~_.-"}},
			want: "?transport=longPolling&connectionId=a%26b%3Dc%2Bd%2Fe%3Ff&messageId=&groups=x%20y%2Cz~_.-&connectionData=",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.in.Encode())
		})
	}
}

func TestSendQuery(t *testing.T) {
	require.Equal(t, "?transport=longPolling&connectionId=a%20b", SendQuery("longPolling", "a b"))
}

func TestEscapeDataString(t *testing.T) {
	require.Equal(t, "", EscapeDataString(""))
	require.Equal(t, "AZaz09-_.~", EscapeDataString("AZaz09-_.~"))
	require.Equal(t, "%C3%A9%20%2C", EscapeDataString("é ,"))
}
