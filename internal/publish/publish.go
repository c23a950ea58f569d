// Package publish uploads the aggregate artifact to object storage through a
// pre-signed URL.
package publish

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nsafar1/vbmgrid/internal/ctxlog"
)

// DefaultContentType is used when the file extension has no registered type.
const DefaultContentType = "application/octet-stream"

// StatusError reports a non-2xx upload response.
type StatusError struct {
	URL    string
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("upload failed with status: %s", e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Uploader PUTs files to pre-signed URLs.
type Uploader struct {
	client *http.Client
}

// New returns an Uploader using client, or http.DefaultClient when nil.
func New(client *http.Client) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{client: client}
}

// Upload sends the file at path as the body of a PUT to url.
func (u *Uploader) Upload(ctx context.Context, path, url string) error {
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, file)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = DefaultContentType
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading artifact.", "source", path, "size", stat.Size(), "contentType", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: url, Status: resp.Status, Body: string(body)}
	}

	logger.Info("Artifact uploaded.", "status", resp.Status)
	return nil
}
