package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/intake/internal/flagx"
	"github.com/dmitrijs2005/intake/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15s" and integer nanoseconds are accepted.
// Absent keys leave the corresponding Config field unchanged.
type JsonConfig struct {
	EndpointAddrHTTP    *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC    *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN         *string         `json:"database_dsn"`
	QuarantineDir       *string         `json:"quarantine_dir"`
	ValidatedDir        *string         `json:"validated_dir"`
	LedgerDir           *string         `json:"ledger_dir"`
	LockFile            *string         `json:"lock_file"`
	ReconcileSchedule   *string         `json:"reconcile_schedule"`
	MaxUploadSize       *int64          `json:"max_upload_size"`
	HandoffTransport    *string         `json:"handoff_transport"`
	S3RootUser          *string         `json:"s3_root_user"`
	S3RootPassword      *string         `json:"s3_root_password"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
	SQSResponseQueueURL *string         `json:"sqs_response_queue_url"`
	HealthCheckInterval *timex.Duration `json:"health_check_interval"`
}

// parseJson loads configuration values from the JSON file named by -c or
// -config into config. Without either flag nothing is loaded. An unreadable
// file or invalid JSON panics, as a misconfigured service must not start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFilePath()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.QuarantineDir, c.QuarantineDir)
	setString(&config.ValidatedDir, c.ValidatedDir)
	setString(&config.LedgerDir, c.LedgerDir)
	setString(&config.LockFile, c.LockFile)
	setString(&config.ReconcileSchedule, c.ReconcileSchedule)
	setString(&config.HandoffTransport, c.HandoffTransport)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.SQSResponseQueueURL, c.SQSResponseQueueURL)

	if c.MaxUploadSize != nil {
		config.MaxUploadSize = *c.MaxUploadSize
	}
	if c.HealthCheckInterval != nil {
		config.HealthCheckInterval = c.HealthCheckInterval.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
