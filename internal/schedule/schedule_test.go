package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateSpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"0 * * * *", false},
		{"*/15 6-22 * * 1-5", false},
		{"@hourly", false},
		{"@every 30m", false},
		{"", true},
		{"   ", true},
		{"every hour", true},
		{"0 0 * * * *", true}, // seconds field is not accepted
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidateSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunner_AddRejectsBadSpec(t *testing.T) {
	r := New(context.Background(), zap.NewNop())
	err := r.Add("not a spec", func(context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule: parse")
}

func TestRunner_RunsJobWithBaseContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "base")

	r := New(ctx, zap.NewNop())
	var runs atomic.Int32
	got := make(chan string, 1)
	require.NoError(t, r.Add("@every 1s", func(ctx context.Context) {
		if runs.Add(1) == 1 {
			got <- ctx.Value(ctxKey{}).(string)
		}
	}))

	r.Start()
	defer r.Stop()

	select {
	case v := <-got:
		assert.Equal(t, "base", v)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestRunner_SkipsJobsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(ctx, zap.NewNop())
	var runs atomic.Int32
	require.NoError(t, r.Add("@every 1s", func(context.Context) { runs.Add(1) }))
	r.Start()
	time.Sleep(1500 * time.Millisecond)
	r.Stop()

	assert.Equal(t, int32(0), runs.Load())
}
