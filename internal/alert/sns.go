package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// SNS rejects subjects longer than this.
const snsSubjectMax = 100

// SNSAPI is the part of the SNS client the sink needs.
type SNSAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes alerts to a topic. Each message carries "level" and
// "source" attributes for subscription filter policies.
type SNSSink struct {
	client   SNSAPI
	topicARN string
}

type SNSSinkOption func(*SNSSink)

// WithSNSClient replaces the client built from the default AWS config.
func WithSNSClient(c SNSAPI) SNSSinkOption {
	return func(s *SNSSink) { s.client = c }
}

func NewSNSSink(topicARN string, opts ...SNSSinkOption) (*SNSSink, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN required")
	}
	s := &SNSSink{topicARN: topicARN}
	for _, o := range opts {
		o(s)
	}
	if s.client != nil {
		return s, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	s.client = sns.NewFromConfig(cfg)
	return s, nil
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Send(ctx context.Context, alert types.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(snsSubject(alert)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"level": stringAttr(string(alert.Level)),
		},
	}
	if alert.Source != "" {
		input.MessageAttributes["source"] = stringAttr(alert.Source)
	}

	if _, err := s.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("publishing alert to %s: %w", s.topicARN, err)
	}
	return nil
}

// snsSubject renders "[level] title", cut on a rune boundary to fit.
func snsSubject(alert types.Alert) string {
	subject := fmt.Sprintf("[%s] %s", alert.Level, alert.Title)
	if len(subject) <= snsSubjectMax {
		return subject
	}
	cut := snsSubjectMax
	for cut > 0 && !utf8.RuneStart(subject[cut]) {
		cut--
	}
	return subject[:cut]
}

func stringAttr(v string) snstypes.MessageAttributeValue {
	return snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
