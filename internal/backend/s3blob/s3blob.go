// Package s3blob binds the BlobStore contract to S3. All calls run through
// a circuit breaker so a broken bucket fails fast instead of hanging every
// send that carries an image.
package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	region   string
	cb       *gobreaker.CircuitBreaker
	log      *zap.SugaredLogger
}

func New(ctx context.Context, region, bucket string, log *zap.SugaredLogger) (*Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg)

	st := gobreaker.Settings{
		Name:    "s3blob",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		region:   region,
		cb:       gobreaker.NewCircuitBreaker(st),
		log:      log,
	}, nil
}

func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	_, err := s.cb.Execute(func() (any, error) {
		return s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(path),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
	})
	if err != nil {
		return "", err
	}
	return s.PublicURL(path), nil
}

func (s *Store) Remove(ctx context.Context, paths []string) error {
	ids := make([]types.ObjectIdentifier, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(p)})
	}
	_, err := s.cb.Execute(func() (any, error) {
		return s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids},
		})
	})
	return err
}

func (s *Store) PublicURL(path string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, url.PathEscape(path))
}
