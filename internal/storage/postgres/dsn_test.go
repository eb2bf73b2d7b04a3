package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		name, dsn, secret, want string
	}{
		{
			name:   "url with password",
			dsn:    "postgres://briefing:hunter2@db:5432/briefing?sslmode=disable",
			secret: "hunter2",
		},
		{
			name:   "key value",
			dsn:    "user=briefing password=hunter2 host=db dbname=briefing",
			secret: "hunter2",
			want:   "user=briefing password=[REDACTED] host=db dbname=briefing",
		},
		{
			name: "url without password",
			dsn:  "postgres://db:5432/briefing?sslmode=disable",
			want: "postgres://db:5432/briefing?sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactDSN(tt.dsn)
			if tt.secret != "" {
				assert.NotContains(t, got, tt.secret)
				assert.Contains(t, got, "REDACTED")
			}
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
