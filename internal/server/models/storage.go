package models

// StorageDescriptor locates one stored file of a job.
type StorageDescriptor struct {
	Location    string `json:"location"`
	Path        string `json:"path"`
	Bucket      string `json:"bucket,omitempty"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}
