package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"

	"cloud.google.com/go/storage"
)

// GCSReporter archives reports as <prefix>/<site>/<run_id>.json objects.
type GCSReporter struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSReporter creates a GCS-backed reporter.
func NewGCSReporter(client *storage.Client, bucket, prefix string) (*GCSReporter, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSReporter{client: client, bucket: bucket, prefix: prefix}, nil
}

// ObjectName returns the object path a report is written to.
func (g *GCSReporter) ObjectName(r RunReport) string {
	return path.Join(g.prefix, strconv.Itoa(r.SiteID), r.RunID+".json")
}

// Report implements Reporter.
func (g *GCSReporter) Report(ctx context.Context, r RunReport) error {
	if r.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	writer := g.client.Bucket(g.bucket).Object(g.ObjectName(r)).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
