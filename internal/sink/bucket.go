package sink

import (
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/engine"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// BucketSink writes downloads as objects in a portable blob bucket.
type BucketSink struct {
	bucket *blob.Bucket
	prefix string
}

// NewBucketSink wraps an open bucket. Objects are written below prefix.
func NewBucketSink(bucket *blob.Bucket, prefix string) *BucketSink {
	return &BucketSink{bucket: bucket, prefix: prefix}
}

// OpenBucketSink opens a bucket URL such as "mem://" or "file:///srv/videos".
func OpenBucketSink(ctx context.Context, bucketURL, prefix string) (*BucketSink, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("error opening bucket %s: %w", bucketURL, err)
	}
	return NewBucketSink(bucket, prefix), nil
}

func (s *BucketSink) Key(filename string) string {
	if s.prefix == "" {
		return filename
	}
	return path.Join(s.prefix, filename)
}

func (s *BucketSink) Persist(ctx context.Context, b *engine.Blob, filename string) error {
	key := s.Key(filename)
	err := s.bucket.WriteAll(ctx, key, b.Data, &blob.WriterOptions{
		ContentType: b.MediaType,
		Metadata: map[string]string{
			"source": "vidgrab",
		},
	})
	if err != nil {
		return fmt.Errorf("error writing object %s: %w", key, err)
	}
	log.Debug().Str("op", "sink/bucket").Msgf("wrote object %s (%d bytes)", key, b.Size())
	return nil
}

func (s *BucketSink) Close() error {
	return s.bucket.Close()
}
