package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "postgres scheme",
			in:   "postgres://u:p@localhost:5432/memoir",
			want: "pgx5://u:p@localhost:5432/memoir?search_path=memoir_dev",
		},
		{
			name: "keeps existing params",
			in:   "postgresql://u:p@db/memoir?sslmode=require",
			want: "pgx5://u:p@db/memoir?search_path=memoir_dev&sslmode=require",
		},
		{
			name:    "rejects other drivers",
			in:      "mysql://u:p@db/memoir",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := migrateURL(tt.in, "memoir_dev")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLatestVersion(t *testing.T) {
	latest, err := LatestVersion()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest, uint(1))
}

func TestStatusPending(t *testing.T) {
	assert.Equal(t, uint(2), Status{Version: 1, Latest: 3}.Pending())
	assert.Equal(t, uint(0), Status{Version: 3, Latest: 3}.Pending())
	assert.Equal(t, uint(0), Status{Version: 4, Latest: 3}.Pending())
}
