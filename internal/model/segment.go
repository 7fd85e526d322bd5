package model

// Segment is one independently fetchable media chunk referenced by a manifest.
// Each segment is owned by exactly one worker while InProgress.
type Segment struct {
	Index   int    // position in the manifest, 0-based
	URI     string // absolute remote URI
	Name    string // local file name, relative to the workspace
	Path    string // absolute local destination
	Init    bool   // EXT-X-MAP initialization section
	Size    int64  // bytes written, unknown (0) until fetched
	Retries int    // failed attempts so far
	Status  SegmentStatus
}

// EncryptionKey references the single decryption key of a manifest.
type EncryptionKey struct {
	Method string
	URI    string
	IV     string
	Name   string
	Path   string
}
