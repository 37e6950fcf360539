package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/intake/internal/flagx"
)

var allowedFlags = []string{
	"-a", "-l", "-d", "-q", "-v", "-k", "-x", "-s", "-m",
	"-t", "-u", "-p", "-b", "-g", "-e", "-r", "-i",
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-l string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-q string   quarantine directory
//	-v string   validated directory
//	-k string   ledger directory
//	-x string   reconcile lock file
//	-s string   reconcile cron schedule ("" disables)
//	-m int      max upload size, MiB
//	-t string   handoff transport ("none" | "s3")
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-r string   SQS response queue URL
//	-i int      health check interval, seconds
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, so cmd-specific flags such as -once pass through untouched.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], allowedFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port of the HTTP API")
	fs.StringVar(&config.EndpointAddrGRPC, "l", config.EndpointAddrGRPC, "address and port of the gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.QuarantineDir, "q", config.QuarantineDir, "quarantine directory")
	fs.StringVar(&config.ValidatedDir, "v", config.ValidatedDir, "validated directory")
	fs.StringVar(&config.LedgerDir, "k", config.LedgerDir, "ledger directory")
	fs.StringVar(&config.LockFile, "x", config.LockFile, "reconcile lock file")
	fs.StringVar(&config.ReconcileSchedule, "s", config.ReconcileSchedule, "reconcile cron schedule")

	maxUploadMiB := fs.Int64("m", config.MaxUploadSize>>20, "max upload size (in MiB)")

	fs.StringVar(&config.HandoffTransport, "t", config.HandoffTransport, "handoff transport: none or s3")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 drop bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.SQSResponseQueueURL, "r", config.SQSResponseQueueURL, "SQS response queue URL")

	healthInterval := fs.Int("i", int(config.HealthCheckInterval.Seconds()), "health check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.MaxUploadSize = *maxUploadMiB << 20
	config.HealthCheckInterval = time.Duration(*healthInterval) * time.Second
}
