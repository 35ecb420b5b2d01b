package login

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "bare code", input: "abc123", want: "abc123"},
		{name: "surrounding whitespace", input: "  abc123\n", want: "abc123"},
		{name: "code with state fragment", input: "abc123#state-xyz", want: "abc123"},
		{
			name:  "callback URL with fragment",
			input: "https://host/callback?code=abc123&state=xyz#fragment",
			want:  "abc123",
		},
		{
			name:  "callback URL code not first",
			input: "https://console.anthropic.com/oauth/code/callback?state=xyz&code=def456",
			want:  "def456",
		},
		{name: "bare query", input: "code=abc123&state=xyz", want: "abc123"},
		{name: "escaped code", input: "https://host/cb?code=a%2Bb", want: "a+b"},
		{name: "empty", input: "", wantErr: ErrEmptyCode},
		{name: "whitespace only", input: " \t\n", wantErr: ErrEmptyCode},
		{name: "fragment only", input: "#state", wantErr: ErrEmptyCode},
		{name: "URL with empty code", input: "https://host/callback?code=&state=xyz", wantErr: ErrEmptyCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCode(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
