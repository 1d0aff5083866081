// Package sink holds the destinations a finished download can be saved to.
package sink

import (
	"context"
	"net/url"
	"strings"

	"github.com/tanq16/vidgrab/internal/engine"
)

var (
	_ engine.Sink = (*FileSink)(nil)
	_ engine.Sink = (*BucketSink)(nil)
	_ engine.Sink = (*S3Sink)(nil)
)

// Open picks a sink for dest. An empty dest or a plain path is a local
// directory, "s3://bucket/prefix" uploads through the AWS SDK and any other
// URL scheme is opened as a portable bucket.
func Open(ctx context.Context, dest, profile string) (engine.Sink, error) {
	if strings.HasPrefix(dest, "s3://") {
		return OpenS3Sink(ctx, dest, profile)
	}
	u, err := url.Parse(dest)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// single-letter schemes are Windows drive letters
		return NewFileSink(dest), nil
	}
	prefix := strings.TrimPrefix(u.Query().Get("prefix"), "/")
	q := u.Query()
	q.Del("prefix")
	u.RawQuery = q.Encode()
	return OpenBucketSink(ctx, u.String(), prefix)
}
