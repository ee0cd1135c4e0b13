package cli

import (
	"testing"
	"time"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		want    time.Duration
		wantErr bool
	}{
		{
			name: "empty string returns zero",
			flag: "",
			want: 0,
		},
		{
			name: "valid seconds",
			flag: "5s",
			want: 5 * time.Second,
		},
		{
			name: "valid complex duration",
			flag: "1m30s",
			want: 90 * time.Second,
		},
		{
			name:    "missing unit returns error",
			flag:    "5",
			wantErr: true,
		},
		{
			name:    "invalid string returns error",
			flag:    "fast",
			wantErr: true,
		},
		{
			name:    "negative duration",
			flag:    "-5s",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeout(tt.flag)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		flag    string
		want    string
		wantErr bool
	}{
		{flag: "", want: OutputTable},
		{flag: "table", want: OutputTable},
		{flag: "JSON", want: OutputJSON},
		{flag: " yaml ", want: OutputYAML},
		{flag: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.flag)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "xml")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseViews(t *testing.T) {
	got, err := ParseViews("")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpus", "agents", "system"}, got)

	got, err = ParseViews("agents, GPUS,agents,")
	require.NoError(t, err)
	assert.Equal(t, []string{"agents", "gpus"}, got)

	_, err = ParseViews("agents,disks")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
