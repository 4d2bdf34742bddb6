package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"datakit/internal/pipeline"
	"datakit/internal/tabular"
)

// ── S3 Object Source ───────────────────────────────────────
// Fetches a JSON or CSV object from S3-compatible storage and parses it
// like the corresponding file source.

type s3Source struct{}

func init() { pipeline.RegisterSource(&s3Source{}) }

func (s *s3Source) Spec() pipeline.SourceSpec {
	return pipeline.SourceSpec{
		Type:  "s3",
		Label: "S3 Object",
		ConfigFields: []pipeline.ConfigField{
			{Key: "bucket", Label: "Bucket", Type: "string", Required: true},
			{Key: "key", Label: "Object Key", Type: "string", Required: true},
			{Key: "format", Label: "Format", Type: "select", Required: true, Options: []string{"json", "csv"}},
			{Key: "region", Label: "Region", Type: "string", Required: false, Default: "us-east-1"},
			{Key: "endpoint", Label: "Endpoint", Type: "string", Required: false, Help: "Custom endpoint URL for S3-compatible services (MinIO, etc.)"},
			{Key: "accessKeyId", Label: "Access Key ID", Type: "string", Required: false, Help: "Leave empty to use the default credential chain"},
			{Key: "secretAccessKey", Label: "Secret Access Key", Type: "password", Required: false},
			{Key: "dataPath", Label: "Data Path", Type: "string", Required: false, Help: "JSON only: dot-separated path to the array"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Required: false, Default: ",", Help: "CSV only: column delimiter"},
		},
	}
}

func (s *s3Source) Discover(ctx context.Context, cfg pipeline.SourceConfig) (*tabular.Schema, error) {
	records, schema, err := fetchS3Object(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if schema != nil {
		return schema, nil
	}
	return inferSchema(records), nil
}

func (s *s3Source) Read(ctx context.Context, cfg pipeline.SourceConfig) (<-chan tabular.Record, <-chan error) {
	out := make(chan tabular.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		records, _, err := fetchS3Object(ctx, cfg)
		if err != nil {
			errCh <- err
			return
		}
		for _, rec := range records {
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

// newS3Client builds an S3 client from source config, falling back to the
// default credential chain when no static keys are given.
func newS3Client(ctx context.Context, cfg pipeline.SourceConfig) (*s3.Client, error) {
	region := cfg.String("region")
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey := cfg.String("accessKeyId"); accessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, cfg.String("secretAccessKey"), ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := cfg.String("endpoint"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // required for MinIO and other S3-compatible services
		}
	})
	return client, nil
}

// fetchS3Object downloads and parses the object. For CSV the returned
// schema carries the header column order; for JSON it is nil and the
// caller infers one.
func fetchS3Object(ctx context.Context, cfg pipeline.SourceConfig) ([]tabular.Record, *tabular.Schema, error) {
	bucket := cfg.String("bucket")
	key := cfg.String("key")
	if bucket == "" || key == "" {
		return nil, nil, fmt.Errorf("bucket and key are required")
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read object body: %w", err)
	}

	switch format := cfg.String("format"); format {
	case "json":
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, nil, fmt.Errorf("parse json: %w", err)
		}
		if dataPath := cfg.String("dataPath"); dataPath != "" {
			raw = navigatePath(raw, dataPath)
		}
		return toRecords(raw), nil, nil

	case "csv":
		reader := csv.NewReader(bytes.NewReader(data))
		if delim := cfg.String("delimiter"); len(delim) > 0 {
			reader.Comma = rune(delim[0])
		}
		reader.LazyQuotes = true
		reader.TrimLeadingSpace = true

		rows, err := reader.ReadAll()
		if err != nil {
			return nil, nil, fmt.Errorf("parse csv: %w", err)
		}
		if len(rows) == 0 {
			return nil, nil, fmt.Errorf("empty csv object")
		}

		headers := rows[0]
		records := make([]tabular.Record, 0, len(rows)-1)
		for _, row := range rows[1:] {
			rowData := make(map[string]any, len(headers))
			for j, h := range headers {
				if j < len(row) {
					rowData[h] = inferCSVValue(row[j])
				}
			}
			records = append(records, tabular.Record{Data: rowData})
		}
		return records, tabular.TextSchema(headers), nil

	default:
		return nil, nil, fmt.Errorf("format must be %q or %q, got %q", "json", "csv", strings.TrimSpace(format))
	}
}
