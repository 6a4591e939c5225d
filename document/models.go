package document

import (
	"io"
	"time"
)

// Parent names the kind of record a document is attached to.
type Parent string

const (
	ParentContract  Parent = "contract"
	ParentMilestone Parent = "milestone"
)

// Document is the metadata row of an uploaded file. URL is filled in by the
// service with a presigned download link.
type Document struct {
	ID          string
	Parent      Parent
	ParentID    string
	Title       string
	ObjectKey   string
	FileName    string
	ContentType string
	Size        int64
	UploadedBy  *string
	UploadedAt  time.Time
	URL         string
}

// Upload is a file received from a client.
type Upload struct {
	Title       string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}
