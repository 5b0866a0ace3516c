// Package publish ships a finished workbook to S3 and its month-to-date
// total to CloudWatch.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/billing"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/providers/aws/common"
)

const (
	// XLSXContentType is the MIME type set on uploaded workbooks.
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// MetricName is the CloudWatch metric carrying the month-to-date cost.
	MetricName = "MonthToDateCost"
)

// Publisher uploads workbooks and publishes cost metrics for one account.
type Publisher struct {
	s3     common.S3Client
	cw     common.CloudWatchClient
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewPublisher returns a Publisher using the given clients. Either client may
// be nil when the matching operation is never called.
func NewPublisher(s3Client common.S3Client, cwClient common.CloudWatchClient, logger logrus.FieldLogger) *Publisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Publisher{s3: s3Client, cw: cwClient, logger: logger, now: time.Now}
}

// ObjectKey joins prefix and name into an S3 key. Slashes around the prefix
// are trimmed so "reports/" and "/reports" give the same key.
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// UploadWorkbook uploads the file at filePath to bucket under prefix and
// returns its s3:// URI.
func (p *Publisher) UploadWorkbook(ctx context.Context, filePath, bucket, prefix string) (string, error) {
	if p.s3 == nil {
		return "", fmt.Errorf("upload %s: no S3 client", filePath)
	}
	if bucket == "" {
		return "", fmt.Errorf("upload %s: bucket is empty", filePath)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open workbook %s: %w", filePath, err)
	}
	defer f.Close()

	key := ObjectKey(prefix, filepath.Base(filePath))
	_, err = p.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(XLSXContentType),
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject s3://%s/%s: %w", bucket, key, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", bucket, key)
	p.logger.WithField("uri", uri).Info("uploaded workbook")
	return uri, nil
}

// PutMonthToDate publishes total as the MonthToDateCost metric for the
// identity's account and the period's month.
func (p *Publisher) PutMonthToDate(ctx context.Context, namespace string, identity models.Identity, period billing.Period, total float64) error {
	if p.cw == nil {
		return fmt.Errorf("publish %s: no CloudWatch client", MetricName)
	}
	if namespace == "" {
		return fmt.Errorf("publish %s: namespace is empty", MetricName)
	}

	_, err := p.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricName),
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("AccountId"), Value: aws.String(identity.AccountID)},
					{Name: aws.String("Month"), Value: aws.String(period.Month())},
				},
				Timestamp: aws.Time(p.now().UTC()),
				Unit:      cwtypes.StandardUnitNone,
				Value:     aws.Float64(billing.RoundCost(total)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("CloudWatch PutMetricData %s/%s: %w", namespace, MetricName, err)
	}

	p.logger.WithFields(logrus.Fields{
		"account": identity.AccountID,
		"month":   period.Month(),
		"total":   total,
	}).Info("published month-to-date cost")
	return nil
}
