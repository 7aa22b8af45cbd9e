package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore is the production Substrate, backed by a single DynamoDB table
// with the named secondary indexes declared in the package doc comment.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoStore wraps an already-configured DynamoDB client.
func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) GetItem(ctx context.Context, key Key) (Item, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: key.PK},
			"SK": &types.AttributeValueMemberS{Value: key.SK},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get item: %w", err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var it Item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, false, fmt.Errorf("store: unmarshal item: %w", err)
	}
	return it, true, nil
}

func (s *DynamoStore) Query(ctx context.Context, in QueryInput) (QueryOutput, error) {
	pkAttr, skAttr := indexAttrs(in.Index)

	keyCond := fmt.Sprintf("%s = :pk", pkAttr)
	exprVals := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: in.PK},
	}
	switch {
	case in.SKBeginsWith != "":
		keyCond += fmt.Sprintf(" AND begins_with(%s, :skPrefix)", skAttr)
		exprVals[":skPrefix"] = &types.AttributeValueMemberS{Value: in.SKBeginsWith}
	case in.SKBetween != nil:
		keyCond += fmt.Sprintf(" AND %s BETWEEN :skFrom AND :skTo", skAttr)
		exprVals[":skFrom"] = &types.AttributeValueMemberS{Value: in.SKBetween.From}
		exprVals[":skTo"] = &types.AttributeValueMemberS{Value: in.SKBetween.To}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: exprVals,
		ScanIndexForward:          aws.Bool(in.ScanIndexForward),
	}
	if in.Index != PrimaryIndex {
		input.IndexName = aws.String(string(in.Index))
	}
	if in.Limit > 0 {
		input.Limit = aws.Int32(int32(in.Limit))
	}
	if in.ExclusiveStartKey != nil {
		esk := map[string]types.AttributeValue{}
		for k, v := range in.ExclusiveStartKey {
			esk[k] = &types.AttributeValueMemberS{Value: v}
		}
		input.ExclusiveStartKey = esk
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return QueryOutput{}, fmt.Errorf("store: query: %w", err)
	}

	items := make([]Item, 0, len(out.Items))
	for _, raw := range out.Items {
		var it Item
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return QueryOutput{}, fmt.Errorf("store: unmarshal query item: %w", err)
		}
		items = append(items, it)
	}

	result := QueryOutput{Items: items}
	if out.LastEvaluatedKey != nil {
		lek := map[string]string{}
		for k, v := range out.LastEvaluatedKey {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				lek[k] = s.Value
			}
		}
		result.LastEvaluatedKey = lek
	}
	return result, nil
}

func (s *DynamoStore) TransactWrite(ctx context.Context, ops []TransactWriteOp) error {
	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		expr, vals := conditionExpression(op.Condition)

		switch {
		case op.Put != nil:
			av, err := attributevalue.MarshalMap(*op.Put)
			if err != nil {
				return fmt.Errorf("store: marshal put item: %w", err)
			}
			put := &types.Put{
				TableName: aws.String(s.table),
				Item:      av,
			}
			if expr != "" {
				put.ConditionExpression = aws.String(expr)
				put.ExpressionAttributeValues = vals
			}
			items = append(items, types.TransactWriteItem{Put: put})
		case op.Delete != nil:
			del := &types.Delete{
				TableName: aws.String(s.table),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: op.Delete.PK},
					"SK": &types.AttributeValueMemberS{Value: op.Delete.SK},
				},
			}
			if expr != "" {
				del.ConditionExpression = aws.String(expr)
				del.ExpressionAttributeValues = vals
			}
			items = append(items, types.TransactWriteItem{Delete: del})
		}
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var ccf *types.TransactionCanceledException
		if errors.As(err, &ccf) {
			for i, reason := range ccf.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return &ErrConditionFailed{Index: i}
				}
			}
		}
		return fmt.Errorf("store: transact write: %w", err)
	}
	return nil
}

func conditionExpression(c *Condition) (string, map[string]types.AttributeValue) {
	if c == nil {
		return "", nil
	}
	switch c.Op {
	case CondAttributeNotExists:
		return fmt.Sprintf("attribute_not_exists(%s)", c.Attribute), nil
	case CondAttributeExists:
		return fmt.Sprintf("attribute_exists(%s)", c.Attribute), nil
	case CondAttributeEquals:
		return fmt.Sprintf("%s = :condVal", c.Attribute), map[string]types.AttributeValue{
			":condVal": &types.AttributeValueMemberS{Value: c.Values[0]},
		}
	case CondAttributeIn:
		vals := map[string]types.AttributeValue{}
		placeholders := ""
		for i, v := range c.Values {
			key := fmt.Sprintf(":condVal%d", i)
			vals[key] = &types.AttributeValueMemberS{Value: v}
			if i > 0 {
				placeholders += ", "
			}
			placeholders += key
		}
		return fmt.Sprintf("%s IN (%s)", c.Attribute, placeholders), vals
	default:
		return "", nil
	}
}
