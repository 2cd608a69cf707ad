package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"community-digest/collectors"
	"community-digest/config"
)

// SnapshotStore archiviert die rohen Collector-Ergebnisse eines Laufs als JSON in S3.
type SnapshotStore struct {
	client *s3.Client
	bucket string
}

// NewSnapshotStore erstellt den S3-Client für das konfigurierte Snapshot-Bucket.
// Gibt nil zurück, wenn kein Bucket konfiguriert ist.
func NewSnapshotStore(cfg *config.Config) (*SnapshotStore, error) {
	if !cfg.SnapshotEnabled() {
		return nil, nil
	}

	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.SnapshotS3URL,
				SigningRegion:     cfg.SnapshotS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.SnapshotS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.SnapshotS3Key, cfg.SnapshotS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return &SnapshotStore{client: s3.NewFromConfig(awsCfg), bucket: cfg.SnapshotS3Bucket}, nil
}

// UploadRawItems lädt die RawItems einer Quelle als JSON-Snapshot hoch.
func (s *SnapshotStore) UploadRawItems(ctx context.Context, community, kind string, runTime time.Time, items []collectors.RawItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("snapshots/%s/%s-%s.json", community, kind, runTime.UTC().Format("2006-01-02T15-04-05Z"))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}
