package config

import (
	"flag"
	"os"
	"time"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-k string   storage kind ("s3" or "local")
//	-b string   S3 bucket name
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-m string   vision model name
//	-f string   prompt-profile YAML file
//	-q int      queue capacity
//	-w int      worker count
//	-i int      progress stream poll interval, milliseconds
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.StorageKind, "k", config.StorageKind, "storage kind (s3|local)")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.VisionModel, "m", config.VisionModel, "vision model")
	fs.StringVar(&config.PromptProfilePath, "f", config.PromptProfilePath, "prompt profile file")
	fs.IntVar(&config.QueueCapacity, "q", config.QueueCapacity, "queue capacity")
	fs.IntVar(&config.WorkerCount, "w", config.WorkerCount, "worker count")
	pollMillis := fs.Int("i", int(config.StreamPollInterval.Milliseconds()), "stream poll interval (in milliseconds)")

	// -c is consumed by parseJson; keep the flagset from rejecting it.
	fs.String("c", "", "JSON config file")

	if err := fs.Parse(os.Args[1:]); err != nil {
		panic(err)
	}

	config.StreamPollInterval = time.Duration(*pollMillis) * time.Millisecond
}
