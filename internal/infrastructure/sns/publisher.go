package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-smart-notifications/internal/application/delivery"
	"github.com/go-smart-notifications/internal/config"
	"github.com/go-smart-notifications/internal/domain"
)

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends notifications to an SNS topic. Subscribers filter on the
// user_id and priority message attributes.
type Publisher struct {
	client   snsAPI
	topicARN string
}

var _ delivery.Publisher = (*Publisher)(nil)

func NewPublisher(ctx context.Context, cfg *config.Config) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: sns.NewFromConfig(awsCfg), topicARN: cfg.SNSTopicARN}, nil
}

func (p *Publisher) Publish(ctx context.Context, msg delivery.Message) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subject(msg.Subject)),
		Message:  aws.String(string(msg.Body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"user_id":  {DataType: aws.String("String"), StringValue: aws.String(msg.UserID)},
			"priority": {DataType: aws.String("String"), StringValue: aws.String(string(msg.Priority))},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w: %w", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// subject trims to the 100 characters SNS accepts.
func subject(s string) string {
	r := []rune(s)
	if len(r) > 100 {
		return string(r[:100])
	}
	return s
}
