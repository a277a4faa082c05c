package transport

import "io"

// Artifact names produced by the upstream API.
const (
	ArtifactClassic     = "classic"
	ArtifactModern      = "modern"
	ArtifactCoverLetter = "cover-letter"
)

// PDFContentType is the only media type accepted for uploads and downloads.
const PDFContentType = "application/pdf"

// File is a source document chosen by the user.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CoverLetterFields carries the job details sent with a cover-letter request.
type CoverLetterFields struct {
	Company        string
	Location       string
	JobTitle       string
	JobDescription string
}

// Artifact is one generated document of an upload session.
type Artifact struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
}

// UploadSession is the upstream result of an upload.
type UploadSession struct {
	SessionID string     `json:"sessionId"`
	Artifacts []Artifact `json:"artifacts"`
}

// ArtifactRefs returns the artifact filenames in order.
func (s UploadSession) ArtifactRefs() []string {
	refs := make([]string, 0, len(s.Artifacts))
	for _, a := range s.Artifacts {
		refs = append(refs, a.Filename)
	}
	return refs
}

// Artifact looks up an artifact by name.
func (s UploadSession) Artifact(name string) (Artifact, bool) {
	for _, a := range s.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// Blob is a downloaded document.
type Blob struct {
	Data        []byte
	ContentType string
	Filename    string
}

// PreviewImage is one rendered page of a document.
type PreviewImage struct {
	Page   int    `json:"page"`
	Source string `json:"source"`
}

// ProgressFunc receives upload progress in percent.
type ProgressFunc func(percent int)
