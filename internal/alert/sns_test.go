package alert

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

type mockSNS struct {
	published []*sns.PublishInput
	err       error
}

func (m *mockSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.published = append(m.published, input)
	return &sns.PublishOutput{}, nil
}

func TestSNSSink_Send(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	alert := types.Alert{
		Level:     types.AlertLevelWarning,
		Title:     "latency threshold exceeded",
		Message:   "POST /repairs took 2.50s",
		Source:    types.SourceAPI,
		Timestamp: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, sink.Send(context.Background(), alert))

	require.Len(t, mock.published, 1)
	pub := mock.published[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789:alerts", *pub.TopicArn)
	assert.Equal(t, "[warning] latency threshold exceeded", *pub.Subject)
	assert.Equal(t, "warning", *pub.MessageAttributes["level"].StringValue)
	assert.Equal(t, types.SourceAPI, *pub.MessageAttributes["source"].StringValue)

	var decoded types.Alert
	require.NoError(t, json.Unmarshal([]byte(*pub.Message), &decoded))
	assert.Equal(t, types.AlertLevelWarning, decoded.Level)
	assert.Equal(t, "POST /repairs took 2.50s", decoded.Message)
}

func TestSNSSink_TruncatesSubject(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	a := testAlert()
	a.Title = strings.Repeat("x", 200)
	require.NoError(t, sink.Send(context.Background(), a))
	assert.Len(t, *mock.published[0].Subject, snsSubjectMax)
}

func TestSNSSubject_KeepsRunesWhole(t *testing.T) {
	a := testAlert()
	a.Level = types.AlertLevelError
	a.Title = strings.Repeat("é", 60)

	got := snsSubject(a)
	assert.LessOrEqual(t, len(got), snsSubjectMax)
	assert.True(t, utf8.ValidString(got))
}

func TestSNSSink_PublishError(t *testing.T) {
	mock := &mockSNS{err: errors.New("throttled")}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	err = sink.Send(context.Background(), testAlert())
	assert.ErrorContains(t, err, "throttled")
}

func TestSNSSink_Name(t *testing.T) {
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(&mockSNS{}))
	require.NoError(t, err)
	assert.Equal(t, "sns", sink.Name())
}

func TestSNSSink_EmptyTopicARN(t *testing.T) {
	_, err := NewSNSSink("")
	assert.Error(t, err)
}
