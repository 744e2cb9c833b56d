package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// NotificationSubject the subject of every summary message
const NotificationSubject = "Canvas Data sync complete"

// Notifier publishes the summary of a finished pass.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

// SNSAPI is the subset of the SNS client used to publish summaries.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes the summary as indented JSON to a topic.
type SNSNotifier struct {
	client SNSAPI
	topic  string
}

func NewSNSNotifier(client SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topic: topicARN}
}

func (n *SNSNotifier) Notify(ctx context.Context, summary Summary) error {
	message, err := FormatSummary(summary)
	if err != nil {
		return err
	}
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topic),
		Subject:  aws.String(NotificationSubject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("publishing to %s failed: %w", n.topic, err)
	}
	log.Debug("Published the sync summary", zap.String("topic", n.topic),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

// FormatSummary renders the summary the way it is published: JSON indented by four spaces.
func FormatSummary(summary Summary) (string, error) {
	b, err := json.MarshalIndent(summary, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encoding the summary failed: %w", err)
	}
	return string(b), nil
}
