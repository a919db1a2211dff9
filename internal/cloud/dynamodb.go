package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBClient wraps the DynamoDB client holding the report index.
type DynamoDBClient struct {
	svc   *dynamodb.Client
	table string
}

// NewDynamoDBClient creates a client bound to the report index table
func NewDynamoDBClient(ctx context.Context, region, table string) (*DynamoDBClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &DynamoDBClient{
		svc:   dynamodb.NewFromConfig(cfg),
		table: table,
	}, nil
}

// ReportEntry is one archived report in the index. The table is keyed by
// deviceId (partition) and generatedAt (sort, unix seconds).
type ReportEntry struct {
	DeviceID        string `dynamodbav:"deviceId" json:"device_id"`
	GeneratedAt     int64  `dynamodbav:"generatedAt" json:"generated_at"`
	ReportID        string `dynamodbav:"reportId" json:"report_id"`
	ReportType      string `dynamodbav:"reportType" json:"report_type"`
	Period          string `dynamodbav:"period,omitempty" json:"period,omitempty"`
	RecordsAnalyzed int    `dynamodbav:"recordsAnalyzed" json:"records_analyzed"`
	Fallback        bool   `dynamodbav:"fallback" json:"fallback"`
	ObjectKey       string `dynamodbav:"objectKey" json:"object_key"`
	URL             string `dynamodbav:"url,omitempty" json:"url,omitempty"`
}

func (e ReportEntry) Time() time.Time { return time.Unix(e.GeneratedAt, 0) }

// PutReport stores an index entry
func (c *DynamoDBClient) PutReport(ctx context.Context, entry ReportEntry) error {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal report entry: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	}

	_, err = c.svc.PutItem(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to put item in DynamoDB: %w", err)
	}

	return nil
}

// ListReports returns the index entries of a device, newest first
func (c *DynamoDBClient) ListReports(ctx context.Context, deviceID string) ([]ReportEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("deviceId = :did"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":did": &types.AttributeValueMemberS{Value: deviceID},
		},
		ScanIndexForward: aws.Bool(false), // Sort descending (newest first)
	}

	var entries []ReportEntry
	paginator := dynamodb.NewQueryPaginator(c.svc, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query reports: %w", err)
		}
		var batch []ReportEntry
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reports: %w", err)
		}
		entries = append(entries, batch...)
	}

	return entries, nil
}
