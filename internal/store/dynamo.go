// DynamoDB-backed document store.
//
// Each collection maps to its own table (TablePrefix + collection) keyed by
// the "id" attribute. Equality queries with ordering run against a global
// secondary index named "<field>-<orderBy>-index" (e.g. the chat collection
// carries "userId-createdAt-index"); timestamps are persisted in RFC 3339, so
// lexicographic index order matches chronological order.
//
// Every call runs under a bounded timeout: the store has non-trivial latency
// and no operation is allowed to hold a request hostage.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// idAttr is the partition-key attribute of every collection table.
const idAttr = "id"

// DynamoOptions configures a DynamoStore.
type DynamoOptions struct {
	// TablePrefix is prepended to collection names to form table names
	// (e.g. "chatbot_" + "chat" -> "chatbot_chat").
	TablePrefix string
	// Endpoint overrides the service endpoint (DynamoDB Local); empty uses
	// the AWS default resolution.
	Endpoint string
	// OpTimeout bounds every store call. Zero disables the bound.
	OpTimeout time.Duration
	// Region overrides AWS_REGION when non-empty.
	Region string
}

// DynamoStore implements Store on DynamoDB. The embedded client is a single
// process-wide shared handle, safe for concurrent use.
type DynamoStore struct {
	client    *dynamodb.Client
	prefix    string
	opTimeout time.Duration
}

// NewDynamoStore resolves AWS configuration and returns a ready store.
func NewDynamoStore(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewDynamoStoreWithClient(client, opts), nil
}

// NewDynamoStoreWithClient wraps an existing client (tests, custom wiring).
func NewDynamoStoreWithClient(client *dynamodb.Client, opts DynamoOptions) *DynamoStore {
	return &DynamoStore{
		client:    client,
		prefix:    opts.TablePrefix,
		opTimeout: opts.OpTimeout,
	}
}

// table maps a collection name onto its table name.
func (s *DynamoStore) table(collection string) *string {
	return aws.String(s.prefix + collection)
}

// bound applies the per-operation timeout.
func (s *DynamoStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		idAttr: &types.AttributeValueMemberS{Value: id},
	}
}

// Get fetches one document by id and decodes it into out.
func (s *DynamoStore) Get(ctx context.Context, collection, id string, out any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: s.table(collection),
		Key:       key(id),
	})
	if err != nil {
		return err
	}
	if len(res.Item) == 0 {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return malformed(collection, id, err)
	}
	return nil
}

// Query runs an equality query against the collection's secondary index and
// decodes the matching documents into out (a pointer to a slice).
func (s *DynamoStore) Query(ctx context.Context, collection string, q Query, out any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(q.Field).Equal(expression.Value(q.Equals))).
		Build()
	if err != nil {
		return err
	}

	input := &dynamodb.QueryInput{
		TableName:                 s.table(collection),
		IndexName:                 aws.String(q.Field + "-" + q.OrderBy + "-index"),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!q.Descending),
	}
	if q.Limit > 0 {
		input.Limit = aws.Int32(int32(q.Limit))
	}

	res, err := s.client.Query(ctx, input)
	if err != nil {
		return err
	}
	if err := attributevalue.UnmarshalListOfMaps(res.Items, out); err != nil {
		return malformed(collection, "", err)
	}
	return nil
}

// Set upserts the full document under id (replace, not merge).
func (s *DynamoStore) Set(ctx context.Context, collection, id string, doc any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return err
	}
	item[idAttr] = &types.AttributeValueMemberS{Value: id}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: s.table(collection),
		Item:      item,
	})
	return err
}

// Update applies a partial attribute-level merge to an existing document.
// Updating a missing document is an error (the document must exist).
func (s *DynamoStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	upd := expression.UpdateBuilder{}
	for k, v := range fields {
		upd = upd.Set(expression.Name(k), expression.Value(v))
	}
	expr, err := expression.NewBuilder().
		WithUpdate(upd).
		WithCondition(expression.AttributeExists(expression.Name(idAttr))).
		Build()
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 s.table(collection),
		Key:                       key(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	return err
}

// Delete removes the document. Deleting a missing id succeeds silently.
func (s *DynamoStore) Delete(ctx context.Context, collection, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: s.table(collection),
		Key:       key(id),
	})
	return err
}
