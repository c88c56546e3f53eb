package models

// S3EventNotification is the payload S3 publishes to the uploads queue for
// s3:ObjectCreated:* events. Object keys arrive URL-encoded.
type S3EventNotification struct {
	Records []S3EventRecord `json:"Records"`
}

type S3EventRecord struct {
	EventName string        `json:"eventName"`
	S3        S3EventEntity `json:"s3"`
}

type S3EventEntity struct {
	Bucket S3BucketRef `json:"bucket"`
	Object S3ObjectRef `json:"object"`
}

type S3BucketRef struct {
	Name string `json:"name"`
}

type S3ObjectRef struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}
