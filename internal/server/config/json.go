package config

import (
	"encoding/json"
	"os"
	"time"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It is an intermediate DTO used only for reading JSON
// configuration files; after unmarshalling, its fields are copied into the
// runtime Config struct. Empty values leave the current Config untouched.
type JsonConfig struct {
	EndpointAddr      string `json:"endpoint_addr"`
	DatabaseDSN       string `json:"database_dsn"`
	SecretKey         string `json:"secret_key"`
	StorageKind       string `json:"storage_kind"`
	S3RootUser        string `json:"s3_root_user"`
	S3RootPassword    string `json:"s3_root_password"`
	S3Bucket          string `json:"s3_bucket"`
	S3Region          string `json:"s3_region"`
	S3BaseEndpoint    string `json:"s3_base_endpoint"`
	LocalStorageDir   string `json:"local_storage_dir"`
	LocalPublicPrefix string `json:"local_public_prefix"`
	VisionEndpoint    string `json:"vision_endpoint"`
	VisionAPIKey      string `json:"vision_api_key"`
	VisionModel       string `json:"vision_model"`
	PromptProfilePath string `json:"prompt_profile_path"`
	QueueCapacity     int    `json:"queue_capacity"`
	WorkerCount       int    `json:"worker_count"`
	StreamPollMillis  int    `json:"stream_poll_millis"`
	MaxUploadFiles    int    `json:"max_upload_files"`
	MaxUploadFileSize int64  `json:"max_upload_file_size"`
	MaxActiveJobs     int    `json:"max_active_jobs"`
}

// jsonConfigPath extracts the -c flag value without consuming the full
// flagset (parseFlags owns that).
func jsonConfigPath(args []string) string {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-c" && i+1 < len(args):
			return args[i+1]
		case len(args[i]) > 3 && args[i][:3] == "-c=":
			return args[i][3:]
		}
	}
	return ""
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c command-line flag; with
// no flag set, no JSON file is loaded. An unreadable or invalid file panics:
// a misconfigured server must not start.
func parseJson(config *Config) {
	path := jsonConfigPath(os.Args[1:])
	if path == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	applyString(&config.EndpointAddr, c.EndpointAddr)
	applyString(&config.DatabaseDSN, c.DatabaseDSN)
	applyString(&config.SecretKey, c.SecretKey)
	applyString(&config.StorageKind, c.StorageKind)
	applyString(&config.S3RootUser, c.S3RootUser)
	applyString(&config.S3RootPassword, c.S3RootPassword)
	applyString(&config.S3Bucket, c.S3Bucket)
	applyString(&config.S3Region, c.S3Region)
	applyString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	applyString(&config.LocalStorageDir, c.LocalStorageDir)
	applyString(&config.LocalPublicPrefix, c.LocalPublicPrefix)
	applyString(&config.VisionEndpoint, c.VisionEndpoint)
	applyString(&config.VisionAPIKey, c.VisionAPIKey)
	applyString(&config.VisionModel, c.VisionModel)
	applyString(&config.PromptProfilePath, c.PromptProfilePath)

	if c.QueueCapacity > 0 {
		config.QueueCapacity = c.QueueCapacity
	}
	if c.WorkerCount > 0 {
		config.WorkerCount = c.WorkerCount
	}
	if c.StreamPollMillis > 0 {
		config.StreamPollInterval = time.Duration(c.StreamPollMillis) * time.Millisecond
	}
	if c.MaxUploadFiles > 0 {
		config.MaxUploadFiles = c.MaxUploadFiles
	}
	if c.MaxUploadFileSize > 0 {
		config.MaxUploadFileSize = c.MaxUploadFileSize
	}
	if c.MaxActiveJobs > 0 {
		config.MaxActiveJobs = c.MaxActiveJobs
	}
}
