package zap

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/quicksuite-labs/agentgateway/pkg/observability"
	"github.com/quicksuite-labs/agentgateway/pkg/sanitization"
)

const maxSNSMessageBytes = 256 * 1024

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSNotifierOptions struct {
	Subject string
}

type snsNotifier struct {
	client   snsAPI
	topicARN string
	subject  string
}

var _ observability.ErrorNotifier = (*snsNotifier)(nil)

// NewSNSNotifier publishes error entries to an SNS topic, one message per
// entry, with the Lambda environment attached for triage.
func NewSNSNotifier(client snsAPI, topicARN string, opts SNSNotifierOptions) observability.ErrorNotifier {
	return &snsNotifier{
		client:   client,
		topicARN: strings.TrimSpace(topicARN),
		subject:  strings.TrimSpace(opts.Subject),
	}
}

func (n *snsNotifier) Notify(ctx context.Context, entry observability.LogEntry) error {
	if n == nil || n.client == nil {
		return errors.New("observability/zap: sns notifier is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if n.topicARN == "" {
		return errors.New("observability/zap: sns topic arn is empty")
	}

	payload := map[string]any{
		"entry": entry,
		"env": map[string]string{
			"aws_region":               os.Getenv("AWS_REGION"),
			"aws_lambda_function_name": os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	subject := n.subject
	if subject == "" {
		subject = "agentgateway error"
	}
	subject = sanitization.SanitizeLogString(subject)
	if len(subject) > 100 {
		subject = subject[:100]
	}

	message := string(body)
	if len(message) > maxSNSMessageBytes {
		message = message[:maxSNSMessageBytes]
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	return err
}

// WithEnvironmentErrorNotifications wires an SNS notifier from the
// ERROR_NOTIFICATIONS_TOPIC_ARN environment variable when it is set. Lambdas
// call this unconditionally; without the variable it is a no-op.
func WithEnvironmentErrorNotifications(ctx context.Context) Option {
	return func(opts *loggerOptions) {
		topicARN := strings.TrimSpace(os.Getenv("ERROR_NOTIFICATIONS_TOPIC_ARN"))
		if topicARN == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			opts.initErr = err
			return
		}
		subject := strings.TrimSpace(os.Getenv("ERROR_NOTIFICATIONS_SUBJECT"))
		opts.notifier = NewSNSNotifier(sns.NewFromConfig(awsCfg), topicARN, SNSNotifierOptions{Subject: subject})
	}
}
