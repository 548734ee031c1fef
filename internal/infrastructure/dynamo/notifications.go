package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-smart-notifications/internal/domain"
)

// notificationItem is the table layout. Timestamps are epoch milliseconds so
// the index sort key orders numerically.
type notificationItem struct {
	NotificationID   string         `dynamodbav:"notification_id"`
	UserID           string         `dynamodbav:"user_id"`
	TriggerType      string         `dynamodbav:"trigger_type"`
	Title            string         `dynamodbav:"title"`
	Message          string         `dynamodbav:"message"`
	DeepLink         string         `dynamodbav:"deep_link,omitempty"`
	TriggerData      map[string]any `dynamodbav:"trigger_data,omitempty"`
	Status           string         `dynamodbav:"status"`
	IsRead           bool           `dynamodbav:"is_read"`
	Dismissed        bool           `dynamodbav:"dismissed"`
	Priority         string         `dynamodbav:"priority"`
	NotificationType string         `dynamodbav:"notification_type"`
	CreatedAt        int64          `dynamodbav:"created_at"`
	UpdatedAt        int64          `dynamodbav:"updated_at"`
	SentAt           *int64         `dynamodbav:"sent_at,omitempty"`
}

func toItem(n *domain.Notification) notificationItem {
	it := notificationItem{
		NotificationID:   n.NotificationID,
		UserID:           n.UserID,
		TriggerType:      string(n.TriggerType),
		Title:            n.Title,
		Message:          n.Message,
		DeepLink:         n.DeepLink,
		TriggerData:      n.TriggerData,
		Status:           string(n.Status),
		IsRead:           n.IsRead,
		Dismissed:        n.Dismissed,
		Priority:         string(n.Priority),
		NotificationType: n.NotificationType,
		CreatedAt:        n.CreatedAt.UnixMilli(),
		UpdatedAt:        n.UpdatedAt.UnixMilli(),
	}
	if n.SentAt != nil {
		ms := n.SentAt.UnixMilli()
		it.SentAt = &ms
	}
	return it
}

func (it notificationItem) toDomain() domain.Notification {
	n := domain.Notification{
		NotificationID:   it.NotificationID,
		UserID:           it.UserID,
		TriggerType:      domain.TriggerType(it.TriggerType),
		Title:            it.Title,
		Message:          it.Message,
		DeepLink:         it.DeepLink,
		TriggerData:      it.TriggerData,
		Status:           domain.Status(it.Status),
		IsRead:           it.IsRead,
		Dismissed:        it.Dismissed,
		Priority:         domain.Priority(it.Priority),
		NotificationType: it.NotificationType,
		CreatedAt:        time.UnixMilli(it.CreatedAt).UTC(),
		UpdatedAt:        time.UnixMilli(it.UpdatedAt).UTC(),
	}
	if it.SentAt != nil {
		t := time.UnixMilli(*it.SentAt).UTC()
		n.SentAt = &t
	}
	return n
}

// NotificationRepo is backend B of the notification store.
type NotificationRepo struct {
	client    API
	tableName string
	clock     func() time.Time
}

var _ domain.NotificationStore = (*NotificationRepo)(nil)

func NewNotificationRepo(client API, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName, clock: time.Now}
}

func (r *NotificationRepo) Save(ctx context.Context, n *domain.Notification) error {
	item, err := attributevalue.MarshalMap(toItem(n))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return unavailable("put notification", err)
	}
	return nil
}

func (r *NotificationRepo) GetByID(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldNotificationID, notificationID),
	})
	if err != nil {
		return nil, unavailable("get notification", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var it notificationItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	n := it.toDomain()
	return &n, nil
}

// ListForUser walks the user index newest first until the limit is reached.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID string, filter domain.ListFilter) ([]domain.Notification, error) {
	limit := filter.EffectiveLimit()
	in := r.userQuery(userID)
	in.Limit = aws.Int32(int32(limit))

	var conds []string
	if !filter.IncludeDismissed {
		conds = append(conds, "#dismissed = :false")
		in.ExpressionAttributeNames["#dismissed"] = fieldDismissed
		in.ExpressionAttributeValues[":false"] = &types.AttributeValueMemberBOOL{Value: false}
	}
	if filter.Status != nil {
		conds = append(conds, "#status = :status")
		in.ExpressionAttributeNames["#status"] = fieldStatus
		in.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberS{Value: string(*filter.Status)}
	}
	if len(conds) > 0 {
		in.FilterExpression = aws.String(strings.Join(conds, " AND "))
	}

	out := []domain.Notification{}
	err := r.queryPages(ctx, in, func(page []domain.Notification) bool {
		for _, n := range page {
			out = append(out, n)
			if len(out) == limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	return r.conditionalSet(ctx, "mark read", notificationID, map[string]any{fieldIsRead: true})
}

func (r *NotificationRepo) Dismiss(ctx context.Context, notificationID string) (bool, error) {
	return r.conditionalSet(ctx, "dismiss", notificationID, map[string]any{fieldDismissed: true})
}

// conditionalSet updates a record only while it exists and is not dismissed.
func (r *NotificationRepo) conditionalSet(ctx context.Context, op, notificationID string, updates map[string]any) (bool, error) {
	updates[fieldUpdatedAt] = r.clock().UnixMilli()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return false, err
	}
	ue.Names["#pk"] = fieldNotificationID
	ue.Names["#dm"] = fieldDismissed
	ue.Values[":false"] = &types.AttributeValueMemberBOOL{Value: false}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldNotificationID, notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk) AND #dm = :false"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, unavailable(op, err)
	}
	return true, nil
}

// MarkAllRead has no multi-item update to lean on: it collects the unread ids
// from the user index and flips them one by one. Records changed concurrently
// fail their condition and are not counted.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	in := r.userQuery(userID)
	in.FilterExpression = aws.String("#read = :false AND #dismissed = :false")
	in.ExpressionAttributeNames["#read"] = fieldIsRead
	in.ExpressionAttributeNames["#dismissed"] = fieldDismissed
	in.ExpressionAttributeValues[":false"] = &types.AttributeValueMemberBOOL{Value: false}

	var ids []string
	err := r.queryPages(ctx, in, func(page []domain.Notification) bool {
		for _, n := range page {
			ids = append(ids, n.NotificationID)
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	now := strconv.FormatInt(r.clock().UnixMilli(), 10)
	count := 0
	for _, id := range ids {
		_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(r.tableName),
			Key:                 strKey(fieldNotificationID, id),
			UpdateExpression:    aws.String("SET #read = :true, #updated = :now"),
			ConditionExpression: aws.String("#read = :false AND #dismissed = :false"),
			ExpressionAttributeNames: map[string]string{
				"#read":      fieldIsRead,
				"#dismissed": fieldDismissed,
				"#updated":   fieldUpdatedAt,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":true":  &types.AttributeValueMemberBOOL{Value: true},
				":false": &types.AttributeValueMemberBOOL{Value: false},
				":now":   &types.AttributeValueMemberN{Value: now},
			},
		})
		if err != nil {
			if isConditionFailed(err) {
				continue
			}
			return count, unavailable("mark all read", err)
		}
		count++
	}
	return count, nil
}

// FindSimilar narrows by window and trigger type on the server and applies
// the per-type key rule to each page, newest first.
func (r *NotificationRepo) FindSimilar(ctx context.Context, q domain.SimilarQuery) (*domain.Notification, error) {
	in := r.userQuery(q.UserID)
	in.KeyConditionExpression = aws.String("#uid = :uid AND #created >= :since")
	in.FilterExpression = aws.String("#tt = :tt AND #dismissed = :false")
	in.ExpressionAttributeNames["#created"] = fieldCreatedAt
	in.ExpressionAttributeNames["#tt"] = fieldTriggerType
	in.ExpressionAttributeNames["#dismissed"] = fieldDismissed
	in.ExpressionAttributeValues[":since"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(q.Since.UnixMilli(), 10)}
	in.ExpressionAttributeValues[":tt"] = &types.AttributeValueMemberS{Value: string(q.TriggerType)}
	in.ExpressionAttributeValues[":false"] = &types.AttributeValueMemberBOOL{Value: false}

	var found *domain.Notification
	err := r.queryPages(ctx, in, func(page []domain.Notification) bool {
		found = domain.FirstSimilar(page, q)
		return found == nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *NotificationRepo) userQuery(userID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(userCreatedIndex),
		KeyConditionExpression: aws.String("#uid = :uid"),
		ScanIndexForward:       aws.Bool(false),
		ExpressionAttributeNames: map[string]string{
			"#uid": fieldUserID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	}
}

// queryPages runs in page by page until visit returns false or the index is
// exhausted.
func (r *NotificationRepo) queryPages(ctx context.Context, in *dynamodb.QueryInput, visit func([]domain.Notification) bool) error {
	for {
		out, err := r.client.Query(ctx, in)
		if err != nil {
			return unavailable("query notifications", err)
		}
		var items []notificationItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return fmt.Errorf("unmarshal notifications: %w", err)
		}
		page := make([]domain.Notification, len(items))
		for i := range items {
			page[i] = items[i].toDomain()
		}
		if !visit(page) || len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
