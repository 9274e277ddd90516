package domain

import "time"

// DriveFile is a file listed in a cloud drive.
type DriveFile struct {
	ID           string
	Name         string
	MimeType     string
	Size         int64
	WebViewLink  string
	ModifiedTime time.Time
	Parents      []string
}
