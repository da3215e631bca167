package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pannenhilfe24/callcore/internal/types"
	"github.com/rs/zerolog"
)

// maxQueryDays bounds how many daily partitions one history listing touches.
const maxQueryDays = 92

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) SaveCallRecord(record types.CallRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}

	_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(s.config.CallRecordsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}
	return nil
}

// ListCallRecords queries one daily partition per date in the filter range.
// Status is pushed down as a filter expression; name search is applied
// client-side on the (already day-bounded) result set.
func (s *DynamoDBStore) ListCallRecords(filter CallRecordFilter) ([]types.CallRecord, error) {
	days, err := dateKeys(filter.StartDate, filter.EndDate)
	if err != nil {
		return nil, err
	}

	var out []types.CallRecord
	for _, day := range days {
		builder := expression.NewBuilder().
			WithKeyCondition(expression.Key("DateKey").Equal(expression.Value(day)))
		if filter.Status != "" {
			builder = builder.WithFilter(expression.Name("Status").Equal(expression.Value(filter.Status)))
		}
		expr, err := builder.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build expression: %w", err)
		}

		input := &dynamodb.QueryInput{
			TableName:                 aws.String(s.config.CallRecordsTable),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		if filter.Status != "" {
			input.FilterExpression = expr.Filter()
		}

		result, err := s.client.Query(context.Background(), input)
		if err != nil {
			return nil, fmt.Errorf("failed to query call records: %w", err)
		}

		var records []types.CallRecord
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal call records: %w", err)
		}

		for _, r := range records {
			if filter.Search != "" && !matchesSearch(r, filter.Search) {
				continue
			}
			out = append(out, r)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (s *DynamoDBStore) SaveRecording(rec types.Recording) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recording: %w", err)
	}

	_, err = s.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(s.config.RecordingsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetRecording(id string) (*types.Recording, error) {
	result, err := s.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(s.config.RecordingsTable),
		Key: map[string]dbtypes.AttributeValue{
			"RecordingID": &dbtypes.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec types.Recording
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recording: %w", err)
	}
	return &rec, nil
}

// ListExpiredRecordings scans for ready recordings older than the cutoff.
// Retention runs a few times a day; a scan is acceptable at that cadence.
func (s *DynamoDBStore) ListExpiredRecordings(cutoff time.Time) ([]types.Recording, error) {
	filter := expression.Name("Status").Equal(expression.Value(string(types.RecordingStatusReady))).
		And(expression.Name("CreatedAt").LessThan(expression.Value(cutoff.Format(time.RFC3339))))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var out []types.Recording
	var lastKey map[string]dbtypes.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(s.config.RecordingsTable),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(context.Background(), input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recordings: %w", err)
		}

		var page []types.Recording
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recordings: %w", err)
		}
		out = append(out, page...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}
	return out, nil
}

// TruncateAll deletes all items from both tables (scan + batch delete)
func (s *DynamoDBStore) TruncateAll() error {
	tables := []struct {
		name string
		pk   string
		sk   string
	}{
		{s.config.CallRecordsTable, "DateKey", "CallID"},
		{s.config.RecordingsTable, "RecordingID", ""},
	}

	for _, table := range tables {
		if err := s.truncateTable(table.name, table.pk, table.sk); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table.name, err)
		}
	}
	return nil
}

func (s *DynamoDBStore) truncateTable(tableName, pk, sk string) error {
	names := map[string]string{"#pk": pk}
	projection := "#pk"
	if sk != "" {
		names["#sk"] = sk
		projection = "#pk, #sk"
	}

	var lastKey map[string]dbtypes.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:                aws.String(tableName),
			ProjectionExpression:     aws.String(projection),
			ExpressionAttributeNames: names,
			Limit:                    aws.Int32(500),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(context.Background(), input)
		if err != nil {
			return err
		}

		// Batch delete in groups of 25
		for i := 0; i < len(result.Items); i += 25 {
			end := i + 25
			if end > len(result.Items) {
				end = len(result.Items)
			}

			requests := make([]dbtypes.WriteRequest, 0, end-i)
			for _, item := range result.Items[i:end] {
				key := map[string]dbtypes.AttributeValue{pk: item[pk]}
				if sk != "" {
					key[sk] = item[sk]
				}
				requests = append(requests, dbtypes.WriteRequest{
					DeleteRequest: &dbtypes.DeleteRequest{Key: key},
				})
			}

			_, err := s.client.BatchWriteItem(context.Background(), &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]dbtypes.WriteRequest{
					tableName: requests,
				},
			})
			if err != nil {
				return err
			}
		}

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}

	s.logger.Info().Str("table", tableName).Msg("table truncated")
	return nil
}

// dateKeys expands an inclusive date range into daily partition keys. An
// empty range defaults to today.
func dateKeys(start, end string) ([]string, error) {
	const layout = "2006-01-02"

	if start == "" && end == "" {
		return []string{time.Now().Format(layout)}, nil
	}
	if start == "" {
		start = end
	}
	if end == "" {
		end = start
	}

	from, err := time.Parse(layout, strings.TrimSpace(start))
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	to, err := time.Parse(layout, strings.TrimSpace(end))
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if to.Before(from) {
		from, to = to, from
	}

	var days []string
	for d := from; !d.After(to) && len(days) < maxQueryDays; d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(layout))
	}
	return days, nil
}
