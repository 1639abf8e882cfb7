package seclog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

type cloudWatchLogsAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// CloudWatchSink writes security events to a dedicated CloudWatch Logs
// stream, separate from the Lambda's own log group, so retention and access
// can be controlled independently.
type CloudWatchSink struct {
	client    cloudWatchLogsAPI
	group     string
	stream    string
	clock     func() time.Time
	ensureMu  sync.Mutex
	streamSet bool
}

func NewCloudWatchSink(client cloudWatchLogsAPI, group, stream string) *CloudWatchSink {
	return &CloudWatchSink{
		client: client,
		group:  group,
		stream: stream,
		clock:  time.Now,
	}
}

var _ Sink = (*CloudWatchSink)(nil)

func (s *CloudWatchSink) Write(ctx context.Context, event Event) error {
	if s == nil || s.client == nil {
		return errors.New("seclog: cloudwatch sink is not configured")
	}
	if s.group == "" || s.stream == "" {
		return errors.New("seclog: log group and stream are required")
	}
	if err := s.ensureStream(ctx); err != nil {
		return err
	}

	message, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
		LogEvents: []cwltypes.InputLogEvent{
			{
				Message:   aws.String(string(message)),
				Timestamp: aws.Int64(s.clock().UnixMilli()),
			},
		},
	})
	return err
}

func (s *CloudWatchSink) ensureStream(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.streamSet {
		return nil
	}

	_, err := s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
	})
	if err != nil {
		var exists *cwltypes.ResourceAlreadyExistsException
		if !errors.As(err, &exists) {
			return err
		}
	}
	s.streamSet = true
	return nil
}
