package storefront

import "github.com/eringen/storefront/content"

// SaveContentRequest is the body of POST /content.
type SaveContentRequest struct {
	Handle string              `json:"handle"`
	Data   content.PageContent `json:"data"`
}

// MutationResponse acknowledges a successful write. Handle is the normalised
// handle the document is stored under.
type MutationResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Handle  string `json:"handle,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AssetResponse is the body of a successful POST /assets.
type AssetResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Status   string `json:"status"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}
