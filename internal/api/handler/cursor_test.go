package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor(t *testing.T) {
	tests := []struct {
		name    string
		cursor  string
		want    string
		wantErr bool
	}{
		{name: "empty starts at beginning", cursor: "", want: ""},
		{name: "round trip", cursor: EncodeCursor("0cc175b9c0f1b6a831c399e269772661"), want: "0cc175b9c0f1b6a831c399e269772661"},
		{name: "key with url characters", cursor: EncodeCursor("a/b+c?"), want: "a/b+c?"},
		{name: "not base64", cursor: "!!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCursor(tt.cursor)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid cursor")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
