package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "disabled skips validation",
			cfg:  Config{Enabled: false},
		},
		{
			name: "enabled local insecure",
			cfg:  Config{Enabled: true, Endpoint: "localhost:4317", ServiceName: "counterpartyd", Insecure: true, SampleRatio: 1.0},
		},
		{
			name: "bracketed ipv6 loopback is local",
			cfg:  Config{Enabled: true, Endpoint: "[::1]:4317", ServiceName: "counterpartyd", Insecure: true},
		},
		{
			name:    "missing endpoint",
			cfg:     Config{Enabled: true, ServiceName: "counterpartyd"},
			wantErr: "endpoint is required",
		},
		{
			name:    "missing service name",
			cfg:     Config{Enabled: true, Endpoint: "localhost:4317"},
			wantErr: "service_name is required",
		},
		{
			name:    "unknown protocol",
			cfg:     Config{Enabled: true, Endpoint: "localhost:4317", ServiceName: "x", Protocol: "udp"},
			wantErr: "protocol must be grpc or http",
		},
		{
			name:    "sample ratio above one",
			cfg:     Config{Enabled: true, Endpoint: "localhost:4317", ServiceName: "x", SampleRatio: 1.5},
			wantErr: "sample_ratio",
		},
		{
			name:    "insecure remote endpoint rejected",
			cfg:     Config{Enabled: true, Endpoint: "collector.example.com:4317", ServiceName: "x", Insecure: true},
			wantErr: "insecure connections to remote endpoints",
		},
		{
			name: "secure remote endpoint allowed",
			cfg:  Config{Enabled: true, Endpoint: "collector.example.com:4317", ServiceName: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.LoggerProvider())
	assert.False(t, tel.Degraded())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), &Config{Enabled: true}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledBuildsProviders(t *testing.T) {
	// OTLP exporters connect lazily, so construction succeeds without a
	// collector listening.
	cfg := &Config{
		Enabled:         true,
		Endpoint:        "localhost:4317",
		ServiceName:     "counterpartyd-test",
		Insecure:        true,
		SampleRatio:     0.5,
		ShutdownTimeout: 500 * time.Millisecond,
	}
	tel, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))

	// No collector is running; the final flush may fail, but shutdown
	// must return within the configured timeout either way.
	done := make(chan struct{})
	go func() {
		_ = tel.Shutdown(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete in time")
	}
}

func TestNilInstanceIsSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.LoggerProvider())
	assert.False(t, tel.Degraded())
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("collector:4318"))
}
