package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ImageStore puts plate images in a bucket and hands out presigned GET URLs.
type S3ImageStore struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	expiry    time.Duration
}

func NewS3ImageStore(client *s3.Client, bucket string, expiry time.Duration) *S3ImageStore {
	return &S3ImageStore{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		expiry:    expiry,
	}
}

func (s *S3ImageStore) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Printf("S3ImageStore: could not put object %s: %v", key, err)
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = s.expiry
	})
	if err != nil {
		log.Printf("S3ImageStore: could not presign %s: %v", key, err)
		return "", fmt.Errorf("s3 presign: %w", err)
	}
	log.Printf("S3ImageStore: added object '%s' to bucket '%s'", key, s.bucket)
	return req.URL, nil
}
