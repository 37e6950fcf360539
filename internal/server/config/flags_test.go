package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		name        string
		args        []string
		expected    *Config
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", ":9090", "-l", ":9091", "-d", "db",
				"-q", "/q", "-v", "/v", "-k", "/k", "-x", "/x.lock", "-s", "@hourly",
				"-m", "10", "-t", "s3", "-u", "user", "-p", "password", "-b", "bucket",
				"-g", "eu-west-1", "-e", "http://endpoint", "-r", "https://sqs/queue", "-i", "30",
			},
			expected: &Config{
				EndpointAddrHTTP:    ":9090",
				EndpointAddrGRPC:    ":9091",
				DatabaseDSN:         "db",
				QuarantineDir:       "/q",
				ValidatedDir:        "/v",
				LedgerDir:           "/k",
				LockFile:            "/x.lock",
				ReconcileSchedule:   "@hourly",
				MaxUploadSize:       10 << 20,
				HandoffTransport:    "s3",
				S3RootUser:          "user",
				S3RootPassword:      "password",
				S3Bucket:            "bucket",
				S3Region:            "eu-west-1",
				S3BaseEndpoint:      "http://endpoint",
				SQSResponseQueueURL: "https://sqs/queue",
				HealthCheckInterval: 30 * time.Second,
			},
		},
		{
			name: "foreign flags are ignored",
			args: []string{"cmd", "-once", "-d", "db"},
			expected: &Config{
				DatabaseDSN: "db",
			},
		},
		{
			name:        "malformed number panics",
			args:        []string{"cmd", "-m", "lots"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			if diff := cmp.Diff(tt.expected, config); diff != "" {
				t.Fatalf("parseFlags() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
