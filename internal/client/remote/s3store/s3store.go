// Package s3store keeps records in an S3 compatible bucket (AWS, MinIO),
// one JSON object per record under "<prefix><table>/<id>.json".
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/shiftsync/internal/client/remote"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/models"
	"github.com/golang/snappy"
)

const archiveDir = "snapshots/"

var (
	_ remote.Store        = (*Store)(nil)
	_ remote.BulkSaver    = (*Store)(nil)
	_ remote.RecordLoader = (*Store)(nil)
	_ remote.Pinger       = (*Store)(nil)
)

// API is the subset of *s3.Client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

type Store struct {
	api    API
	creds  aws.CredentialsProvider
	bucket string
	prefix string
	now    func() time.Time
}

// New builds a client from cfg. Static keys win over the default AWS
// credential chain.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3store: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithAPI(client, awsCfg.Credentials, cfg.Bucket, cfg.Prefix), nil
}

// NewWithAPI wraps an existing client. creds may be nil, in which case the
// store never reports itself authenticated.
func NewWithAPI(api API, creds aws.CredentialsProvider, bucket, prefix string) *Store {
	return &Store{api: api, creds: creds, bucket: bucket, prefix: prefix, now: time.Now}
}

func (s *Store) recordKey(table models.Table, id string) string {
	return s.prefix + string(table) + "/" + id + ".json"
}

func (s *Store) IsAuthenticated(ctx context.Context) bool {
	if s.creds == nil {
		return false
	}
	c, err := s.creds.Retrieve(ctx)
	if err != nil || !c.HasKeys() {
		return false
	}
	return !c.CanExpire || s.now().Before(c.Expires)
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return mapError(err)
}

func (s *Store) Save(ctx context.Context, rec models.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("s3store: encode %s: %w", rec.Key(), err)
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.recordKey(rec.Table, rec.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3store: put %s: %w", rec.Key(), mapError(err))
	}
	return nil
}

// SaveAll writes every record and then a snappy compressed archive of the
// whole snapshot. The archive is written last so its presence means the
// push completed.
func (s *Store) SaveAll(ctx context.Context, snap models.Snapshot) error {
	for _, t := range models.AllTables {
		for _, rec := range snap[t] {
			if err := s.Save(ctx, rec); err != nil {
				return err
			}
		}
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3store: encode snapshot: %w", err)
	}
	key := fmt.Sprintf("%s%s%d.json.sz", s.prefix, archiveDir, s.now().UnixNano())
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(snappy.Encode(nil, raw)),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3store: put archive: %w", mapError(err))
	}
	return nil
}

// Archives lists the snapshot archive keys, oldest first.
func (s *Store) Archives(ctx context.Context) ([]string, error) {
	keys, err := s.list(ctx, s.prefix+archiveDir)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) LoadArchive(ctx context.Context, key string) (models.Snapshot, error) {
	raw, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	decoded, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, fmt.Errorf("s3store: decode archive %s: %w", key, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(decoded, &snap); err != nil {
		return nil, fmt.Errorf("s3store: decode archive %s: %w", key, err)
	}
	return snap, nil
}

func (s *Store) Load(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	raw, err := s.get(ctx, s.recordKey(table, id))
	if err != nil {
		return nil, err
	}
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("s3store: decode %s: %w", models.RecordKey(table, id), err)
	}
	return &rec, nil
}

// LoadAll returns the live records of table sorted by id.
func (s *Store) LoadAll(ctx context.Context, table models.Table) ([]models.Record, error) {
	keys, err := s.list(ctx, s.prefix+string(table)+"/")
	if err != nil {
		return nil, err
	}

	out := make([]models.Record, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		raw, err := s.get(ctx, key)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec models.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("s3store: decode %s: %w", key, err)
		}
		if rec.IsDeleted() {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: get %s: %w", key, mapError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3store: read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3store: list %s: %w", prefix, mapError(err))
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return common.ErrNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "Forbidden":
			return fmt.Errorf("%w: %s", remote.ErrUnauthorized, apiErr.ErrorMessage())
		case "SlowDown", "ServiceUnavailable", "InternalError", "RequestTimeout":
			return fmt.Errorf("%w: %s", remote.ErrUnavailable, apiErr.ErrorMessage())
		}
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
		}
		return err
	}

	// No API error means the request never got an answer.
	return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
}
