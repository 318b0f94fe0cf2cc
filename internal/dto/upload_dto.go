package dto

// UploadResponse describes a stored attachment.
type UploadResponse struct {
	URL       string `json:"url"`
	Type      string `json:"type"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// PreviewResponse carries a local data URI preview of an attachment.
type PreviewResponse struct {
	DataURI  string `json:"data_uri"`
	Type     string `json:"type"`
	FileName string `json:"file_name"`
}
