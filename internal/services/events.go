package services

// GCSEvent is the payload of a google.cloud.storage.object.v1.finalized
// CloudEvent, reduced to the fields the watcher needs.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
