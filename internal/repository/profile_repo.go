package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"noirvision-backend/internal/models"
)

// Item layout: partition key user_id, sort key sk.
const (
	skProfile        = "PROFILE"
	skIncidentPrefix = "INCIDENT#"
	incidentPageSize = 100
)

// DynamoAPI is the subset of the DynamoDB client the profile store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// ProfileRepo stores user profiles and their incidents in one DynamoDB table.
type ProfileRepo struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

func NewProfileRepo(client DynamoAPI, table string) *ProfileRepo {
	return &ProfileRepo{client: client, table: table, now: time.Now}
}

func (r *ProfileRepo) PutProfile(ctx context.Context, userID, email string) (*models.Profile, error) {
	p := &models.Profile{UserID: userID, Email: email, UpdatedAt: r.now().UTC()}
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item: map[string]types.AttributeValue{
			"user_id":    str(userID),
			"sk":         str(skProfile),
			"email":      str(email),
			"updated_at": str(formatTime(p.UpdatedAt)),
		},
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	item, err := r.getItem(ctx, userID, skProfile)
	if err != nil {
		return nil, err
	}
	return &models.Profile{
		UserID:    attrString(item, "user_id"),
		Email:     attrString(item, "email"),
		UpdatedAt: attrTime(item, "updated_at"),
	}, nil
}

// PutIncident creates or overwrites an incident.
func (r *ProfileRepo) PutIncident(ctx context.Context, inc *models.Incident) error {
	now := r.now().UTC()
	inc.CreatedAt = now
	inc.UpdatedAt = now
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      incidentItem(inc),
	})
	return err
}

func (r *ProfileRepo) GetIncident(ctx context.Context, userID, incidentID string) (*models.Incident, error) {
	item, err := r.getItem(ctx, userID, skIncidentPrefix+incidentID)
	if err != nil {
		return nil, err
	}
	return incidentFromItem(item), nil
}

// ListIncidents returns the user's incidents, newest first.
func (r *ProfileRepo) ListIncidents(ctx context.Context, userID string) ([]*models.Incident, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("user_id = :uid AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":    str(userID),
			":prefix": str(skIncidentPrefix),
		},
		Limit: aws.Int32(incidentPageSize),
	})
	if err != nil {
		return nil, err
	}

	incidents := make([]*models.Incident, 0, len(out.Items))
	for _, item := range out.Items {
		incidents = append(incidents, incidentFromItem(item))
	}
	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].CreatedAt.After(incidents[j].CreatedAt)
	})
	return incidents, nil
}

// UpdateIncident sets only the non-nil fields. Returns ErrNotFound when the
// incident does not exist.
func (r *ProfileRepo) UpdateIncident(ctx context.Context, userID, incidentID string, req models.UpdateIncidentRequest) (*models.Incident, error) {
	names := map[string]string{"#ua": "updated_at"}
	values := map[string]types.AttributeValue{":ua": str(formatTime(r.now().UTC()))}
	expr := "SET "

	set := func(alias, attr string, v *string) {
		if v == nil {
			return
		}
		names["#"+alias] = attr
		values[":"+alias] = str(*v)
		expr += "#" + alias + " = :" + alias + ", "
	}
	set("name", "incident_name", req.IncidentName)
	set("desc", "description", req.Description)
	set("link", "video_link", req.VideoLink)
	set("text", "generated_text", req.GeneratedText)

	if len(names) == 1 {
		return r.GetIncident(ctx, userID, incidentID)
	}
	expr += "#ua = :ua"

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       itemKey(userID, skIncidentPrefix+incidentID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(sk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return incidentFromItem(out.Attributes), nil
}

func (r *ProfileRepo) getItem(ctx context.Context, userID, sk string) (map[string]types.AttributeValue, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key:       itemKey(userID, sk),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return out.Item, nil
}

func itemKey(userID, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"user_id": str(userID), "sk": str(sk)}
}

func incidentItem(inc *models.Incident) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":        str(inc.UserID),
		"sk":             str(skIncidentPrefix + inc.IncidentID),
		"incident_id":    str(inc.IncidentID),
		"incident_name":  str(inc.IncidentName),
		"description":    str(inc.Description),
		"video_link":     str(inc.VideoLink),
		"generated_text": str(inc.GeneratedText),
		"created_at":     str(formatTime(inc.CreatedAt)),
		"updated_at":     str(formatTime(inc.UpdatedAt)),
	}
}

func incidentFromItem(item map[string]types.AttributeValue) *models.Incident {
	return &models.Incident{
		IncidentID:    attrString(item, "incident_id"),
		UserID:        attrString(item, "user_id"),
		IncidentName:  attrString(item, "incident_name"),
		Description:   attrString(item, "description"),
		VideoLink:     attrString(item, "video_link"),
		GeneratedText: attrString(item, "generated_text"),
		CreatedAt:     attrTime(item, "created_at"),
		UpdatedAt:     attrTime(item, "updated_at"),
	}
}

func str(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func attrString(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func attrTime(item map[string]types.AttributeValue, key string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, attrString(item, key))
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
