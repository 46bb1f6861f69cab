package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{expr: "rate(1 hour)", want: "@every 1h0m0s"},
		{expr: "rate(1 minute)", want: "@every 1m0s"},
		{expr: "rate(15 minutes)", want: "@every 15m0s"},
		{expr: "rate(2 days)", want: "@every 48h0m0s"},
		{expr: " rate(3 hours) ", want: "@every 3h0m0s"},
		{expr: "cron(0 * * * ? *)", want: "0 * * * *"},
		{expr: "cron(*/10 * ? * * *)", want: "*/10 * * * *"},
		{expr: "@hourly", want: "@hourly"},
		{expr: "@every 5m", want: "@every 5m"},
		{expr: "*/5 * * * *", want: "*/5 * * * *"},
		{expr: "", wantErr: true},
		{expr: "rate(0 minutes)", wantErr: true},
		{expr: "rate(-1 hour)", wantErr: true},
		{expr: "rate(1 fortnight)", wantErr: true},
		{expr: "rate(hour)", wantErr: true},
		{expr: "cron(0 * * *)", wantErr: true},
		{expr: "cron(0 * * * ? 2030)", wantErr: true},
		{expr: "every hour", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()

			got, err := ParseSchedule(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEverySpec(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "@every 1m0s", EverySpec(time.Minute))
}
