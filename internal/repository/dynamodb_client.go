package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"response-broker/internal/domain"
)

const (
	pkPrefixChannel = "CHAN#"
	skPrefixMsg     = "MSG#"

	// Fixed-width so sort keys order lexically by time.
	skTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps one item per exchange, partitioned by channel.
type DynamoStore struct {
	api        dynamodbAPI
	tableName  string
	newBackOff func() backoff.BackOff
}

// NewDynamoStore creates a store over tableName.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, newBackOff: defaultBackOff}, nil
}

func defaultBackOff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 100 * time.Millisecond
	expo.MaxInterval = 2 * time.Second
	expo.MaxElapsedTime = 8 * time.Second
	return expo
}

func channelPK(channel string) string {
	return pkPrefixChannel + channel
}

// recordSK orders records by time; the id suffix keeps same-instant writes
// distinct.
func recordSK(ts time.Time, id string) string {
	return skPrefixMsg + ts.UTC().Format(skTimeLayout) + "#" + id
}

var newID = func() string {
	return uuid.NewString()
}

// ReadChannel returns every exchange for channel in chronological order.
func (s *DynamoStore) ReadChannel(ctx context.Context, channel string) ([]domain.ExchangeRecord, error) {
	p := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: channelPK(channel)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})

	var out []domain.ExchangeRecord
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: ReadChannel query: %w", err)
		}
		for _, item := range page.Items {
			rec, err := itemToRecord(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ReadChannel unmarshal: %w", err)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// ReadAll scans every channel and returns records ordered by timestamp.
func (s *DynamoStore) ReadAll(ctx context.Context) ([]domain.ExchangeRecord, error) {
	p := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ConsistentRead: aws.Bool(true),
	})

	type keyed struct {
		sk  string
		rec domain.ExchangeRecord
	}
	var all []keyed
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: ReadAll scan: %w", err)
		}
		for _, item := range page.Items {
			rec, err := itemToRecord(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ReadAll unmarshal: %w", err)
			}
			sk, _ := strAttr(item, "SK")
			all = append(all, keyed{sk: sk, rec: rec})
		}
	}
	// Scan order is by partition hash; the sort key carries time order.
	sort.SliceStable(all, func(i, j int) bool { return all[i].sk < all[j].sk })

	out := make([]domain.ExchangeRecord, 0, len(all))
	for _, k := range all {
		out = append(out, k.rec)
	}
	return out, nil
}

// Append writes rec as a new item, retrying throttling and server faults.
func (s *DynamoStore) Append(ctx context.Context, rec domain.ExchangeRecord) error {
	if strings.TrimSpace(rec.Channel) == "" {
		return errors.New("repository: Append: channel is required")
	}
	if rec.Timestamp.IsZero() {
		return errors.New("repository: Append: timestamp is required")
	}
	in := &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                recordItem(rec, newID()),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	}

	attempt := 0
	op := func() error {
		attempt++
		_, err := s.api.PutItem(ctx, in)
		if err == nil {
			return nil
		}
		// A retried put that finds its own item means an earlier attempt
		// landed after the client gave up on it.
		if attempt > 1 && apiErrorCode(err) == "ConditionalCheckFailedException" {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"TransactionConflictException":           true,
}

func retryable(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return retryableCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func recordItem(rec domain.ExchangeRecord, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: channelPK(rec.Channel)},
		"SK":        &types.AttributeValueMemberS{Value: recordSK(rec.Timestamp, id)},
		"channel":   &types.AttributeValueMemberS{Value: rec.Channel},
		"input":     &types.AttributeValueMemberS{Value: rec.Input},
		"output":    &types.AttributeValueMemberS{Value: rec.Output},
		"timestamp": &types.AttributeValueMemberS{Value: rec.Timestamp.UTC().Format(time.RFC3339Nano)},
	}
}

func itemToRecord(item map[string]types.AttributeValue) (domain.ExchangeRecord, error) {
	channel, err := strAttr(item, "channel")
	if err != nil {
		return domain.ExchangeRecord{}, err
	}
	input, err := strAttr(item, "input")
	if err != nil {
		return domain.ExchangeRecord{}, err
	}
	output, err := strAttr(item, "output")
	if err != nil {
		return domain.ExchangeRecord{}, err
	}
	rawTS, err := strAttr(item, "timestamp")
	if err != nil {
		return domain.ExchangeRecord{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		return domain.ExchangeRecord{}, fmt.Errorf("repository: parse timestamp %q: %w", rawTS, err)
	}
	return domain.ExchangeRecord{Timestamp: ts.UTC(), Channel: channel, Input: input, Output: output}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
