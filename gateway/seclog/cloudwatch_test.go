package seclog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCWL struct {
	createCalls int
	createErr   error
	putInputs   []*cloudwatchlogs.PutLogEventsInput
	putErr      error
}

func (f *fakeCWL) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.putInputs = append(f.putInputs, in)
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

func (f *fakeCWL) CreateLogStream(_ context.Context, _ *cloudwatchlogs.CreateLogStreamInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func TestCloudWatchSinkWritesEvent(t *testing.T) {
	fake := &fakeCWL{}
	sink := NewCloudWatchSink(fake, "/quick-suite/security", "s3-crud")

	err := sink.Write(context.Background(), Event{
		Type:     EventAuthFailure,
		ToolName: "s3_read_object",
		SourceIP: "198.51.100.7",
	})
	require.NoError(t, err)

	require.Len(t, fake.putInputs, 1)
	in := fake.putInputs[0]
	assert.Equal(t, "/quick-suite/security", *in.LogGroupName)
	assert.Equal(t, "s3-crud", *in.LogStreamName)
	require.Len(t, in.LogEvents, 1)

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(*in.LogEvents[0].Message), &decoded))
	assert.Equal(t, EventAuthFailure, decoded.Type)
	assert.Equal(t, "s3_read_object", decoded.ToolName)
}

func TestCloudWatchSinkCreatesStreamOnce(t *testing.T) {
	fake := &fakeCWL{}
	sink := NewCloudWatchSink(fake, "group", "stream")

	require.NoError(t, sink.Write(context.Background(), Event{Type: EventAuthFailure}))
	require.NoError(t, sink.Write(context.Background(), Event{Type: EventAuthFailure}))
	assert.Equal(t, 1, fake.createCalls)
}

func TestCloudWatchSinkToleratesExistingStream(t *testing.T) {
	fake := &fakeCWL{createErr: &cwltypes.ResourceAlreadyExistsException{}}
	sink := NewCloudWatchSink(fake, "group", "stream")

	assert.NoError(t, sink.Write(context.Background(), Event{Type: EventAuthFailure}))
}

func TestCloudWatchSinkPropagatesCreateFailure(t *testing.T) {
	fake := &fakeCWL{createErr: errors.New("access denied")}
	sink := NewCloudWatchSink(fake, "group", "stream")

	assert.Error(t, sink.Write(context.Background(), Event{Type: EventAuthFailure}))
}

func TestCloudWatchSinkRequiresConfiguration(t *testing.T) {
	assert.Error(t, NewCloudWatchSink(&fakeCWL{}, "", "stream").Write(context.Background(), Event{}))
	assert.Error(t, NewCloudWatchSink(&fakeCWL{}, "group", "").Write(context.Background(), Event{}))
}
