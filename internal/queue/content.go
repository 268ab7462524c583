package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"postpilot/internal/config"
	"postpilot/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ContentTrigger hands claimed jobs to the content workers through SQS. It is
// the immediate, undelayed half of the broker surface: SQS caps message delay
// at 15 minutes, far below a posting schedule's horizon, which is exactly why
// the polling dispatcher path exists for SQS deployments.
type ContentTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewContentTrigger creates a ContentTrigger with the given SQS client and
// configuration. It reads the queue URL from the AWSConfig.
func NewContentTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *ContentTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentTrigger{
		client:   client,
		queueURL: awsCfg.CreateContentQueue,
		logger:   logger,
	}
}

// SubmitImmediate serializes the payload to JSON and sends it to the content
// queue with no delay. The logical queue name travels as a message attribute
// so workers consuming a shared physical queue can route on it.
func (t *ContentTrigger) SubmitImmediate(ctx context.Context, queue string, payload any) (*types.TriggerHandle, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal queue payload", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"queue": {
				DataType:    aws.String("String"),
				StringValue: aws.String(queue),
			},
		},
	}

	out, err := t.client.SendMessage(ctx, input)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamBroker, "failed to send message to "+t.queueURL, err)
	}

	handle := &types.TriggerHandle{
		Queue:  queue,
		FireAt: time.Now().UTC(),
	}
	if out.MessageId != nil {
		handle.MessageID = *out.MessageId
	}

	t.logger.InfoContext(ctx, "content message sent",
		"queue_url", t.queueURL,
		"queue", queue,
		"message_id", handle.MessageID,
	)

	return handle, nil
}
