package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSNotifier(t *testing.T) {
	client := &fakeSNS{}
	notifier := NewSNSNotifier(client, "arn:aws:sns:us-east-1:123456789012:canvas")

	require.NoError(t, notifier.Notify(context.Background(), Summary{TotalFiles: 3, SkippedFiles: 3}))
	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:canvas", aws.ToString(input.TopicArn))
	assert.Equal(t, "Canvas Data sync complete", aws.ToString(input.Subject))
	assert.JSONEq(t, `{"total_files":3,"fetched_files":0,"skipped_files":3,"removed_files":0,
		"reinvoke":false,"tables_created":0,"tables_updated":0}`, aws.ToString(input.Message))
}

func TestSNSNotifierError(t *testing.T) {
	notifier := NewSNSNotifier(&fakeSNS{err: errors.New("denied")}, "topic")
	err := notifier.Notify(context.Background(), Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}
