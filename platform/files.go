package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eringen/storefront/content"
)

// ErrAssetFailed is returned when the platform reports that it could not
// process an uploaded file.
var ErrAssetFailed = errors.New("platform: asset processing failed")

// FileStatus is the processing state of a file object. UPLOADED and
// PROCESSING are both "pending".
type FileStatus string

const (
	FileStatusUploaded   FileStatus = "UPLOADED"
	FileStatusProcessing FileStatus = "PROCESSING"
	FileStatusReady      FileStatus = "READY"
	FileStatusFailed     FileStatus = "FAILED"
)

// Parameter is one form field the staged upload target requires. Order
// matters for the target's signature check.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StagedTarget is a one-time destination for raw bytes. It is never
// persisted.
type StagedTarget struct {
	URL         string      `json:"url"`
	ResourceURL string      `json:"resourceUrl"`
	Parameters  []Parameter `json:"parameters"`
}

// File is the platform's view of a materialized asset.
type File struct {
	ID     string
	Status FileStatus
	URL    string
}

// resourceKind maps a MIME type onto the platform's staged upload resource.
func resourceKind(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "IMAGE"
	case strings.HasPrefix(mimeType, "video/"):
		return "VIDEO"
	default:
		return "FILE"
	}
}

const stagedUploadsCreateMutation = `mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets { url resourceUrl parameters { name value } }
    userErrors { field message }
  }
}`

// StageUpload requests a signed upload target for one file.
func (c *Client) StageUpload(ctx context.Context, filename, mimeType string, size int64) (StagedTarget, error) {
	var out struct {
		StagedUploadsCreate struct {
			StagedTargets []StagedTarget `json:"stagedTargets"`
			UserErrors    []UserError    `json:"userErrors"`
		} `json:"stagedUploadsCreate"`
	}
	input := map[string]any{
		"filename":   filename,
		"mimeType":   mimeType,
		"resource":   resourceKind(mimeType),
		"httpMethod": "POST",
		"fileSize":   fmt.Sprintf("%d", size),
	}
	if err := c.do(ctx, "stagedUploadsCreate", stagedUploadsCreateMutation, map[string]any{"input": []any{input}}, &out); err != nil {
		return StagedTarget{}, err
	}
	if err := userErrorsErr("stagedUploadsCreate", out.StagedUploadsCreate.UserErrors); err != nil {
		return StagedTarget{}, err
	}
	if len(out.StagedUploadsCreate.StagedTargets) == 0 {
		return StagedTarget{}, errors.New("platform stagedUploadsCreate: no target returned")
	}
	target := out.StagedUploadsCreate.StagedTargets[0]
	if target.URL == "" || target.ResourceURL == "" {
		return StagedTarget{}, errors.New("platform stagedUploadsCreate: incomplete target")
	}
	return target, nil
}

const fileCreateMutation = `mutation fileCreate($files: [FileCreateInput!]!) {
  fileCreate(files: $files) {
    files { id fileStatus }
    userErrors { field message code }
  }
}`

// CreateFile materializes a file object from a staged resource URL. The
// returned file is usually still pending.
func (c *Client) CreateFile(ctx context.Context, resourceURL, filename, mimeType string) (File, error) {
	var out struct {
		FileCreate struct {
			Files []struct {
				ID         string     `json:"id"`
				FileStatus FileStatus `json:"fileStatus"`
			} `json:"files"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"fileCreate"`
	}
	input := map[string]any{
		"originalSource": resourceURL,
		"contentType":    resourceKind(mimeType),
		"filename":       filename,
	}
	if err := c.do(ctx, "fileCreate", fileCreateMutation, map[string]any{"files": []any{input}}, &out); err != nil {
		return File{}, err
	}
	if err := userErrorsErr("fileCreate", out.FileCreate.UserErrors); err != nil {
		return File{}, err
	}
	if len(out.FileCreate.Files) == 0 || out.FileCreate.Files[0].ID == "" {
		return File{}, errors.New("platform fileCreate: no file returned")
	}
	f := out.FileCreate.Files[0]
	return File{ID: f.ID, Status: f.FileStatus}, nil
}

const fileStatusQuery = `query fileStatus($id: ID!) {
  node(id: $id) {
    id
    ... on MediaImage { fileStatus image { url } }
    ... on Video { fileStatus originalSource { url } }
    ... on GenericFile { fileStatus url }
  }
}`

type urlHolder struct {
	URL string `json:"url"`
}

// File reads the current status of a file object.
func (c *Client) File(ctx context.Context, id string) (File, error) {
	var out struct {
		Node *struct {
			ID             string     `json:"id"`
			FileStatus     FileStatus `json:"fileStatus"`
			URL            string     `json:"url"`
			Image          *urlHolder `json:"image"`
			OriginalSource *urlHolder `json:"originalSource"`
		} `json:"node"`
	}
	if err := c.do(ctx, "fileStatus", fileStatusQuery, map[string]any{"id": id}, &out); err != nil {
		return File{}, err
	}
	if out.Node == nil {
		return File{}, fmt.Errorf("file %s: %w", id, content.ErrNotFound)
	}
	f := File{ID: out.Node.ID, Status: out.Node.FileStatus, URL: out.Node.URL}
	switch {
	case out.Node.Image != nil && out.Node.Image.URL != "":
		f.URL = out.Node.Image.URL
	case out.Node.OriginalSource != nil && out.Node.OriginalSource.URL != "":
		f.URL = out.Node.OriginalSource.URL
	}
	return f, nil
}

// LocateAsset implements content.AssetLocator.
func (c *Client) LocateAsset(ctx context.Context, id string) (string, bool, error) {
	f, err := c.File(ctx, id)
	if err != nil {
		return "", false, err
	}
	if f.Status == FileStatusFailed {
		return "", false, fmt.Errorf("file %s: %w", id, ErrAssetFailed)
	}
	return f.URL, f.Status == FileStatusReady && f.URL != "", nil
}
