package slack

import (
	"context"
	"errors"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/modelyard/internal/notify"
)

type mockClient struct {
	calls    int
	channels []string
	errs     []error // returned in order, then nil
}

func (m *mockClient) PostMessageContext(_ context.Context, channelID string, _ ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channels = append(m.channels, channelID)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", "", err
	}
	return channelID, "1700000000.000100", nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{Token: "xoxb"}); err == nil {
		t.Error("expected error without channel")
	}
	if _, err := New(Opts{ChannelID: "C1"}); err == nil {
		t.Error("expected error without token or client")
	}
	if _, err := New(Opts{ChannelID: "C1", Client: &mockClient{}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNotify_Posts(t *testing.T) {
	mc := &mockClient{}
	n, _ := New(Opts{ChannelID: "C123", Client: mc})

	if err := n.Notify(context.Background(), notify.Event{Title: "promoted"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if mc.calls != 1 || mc.channels[0] != "C123" {
		t.Errorf("calls = %d channels = %v", mc.calls, mc.channels)
	}
}

func TestNotify_RetriesRateLimit(t *testing.T) {
	mc := &mockClient{errs: []error{&slackapi.RateLimitedError{RetryAfter: time.Millisecond}}}
	n, _ := New(Opts{ChannelID: "C1", Client: mc})

	if err := n.Notify(context.Background(), notify.Event{}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if mc.calls != 2 {
		t.Errorf("calls = %d, want 2", mc.calls)
	}
}

func TestNotify_NoRetryOnOtherErrors(t *testing.T) {
	boom := errors.New("channel_not_found")
	mc := &mockClient{errs: []error{boom}}
	n, _ := New(Opts{ChannelID: "C1", Client: mc})

	err := n.Notify(context.Background(), notify.Event{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if mc.calls != 1 {
		t.Errorf("calls = %d, want 1", mc.calls)
	}
}

func TestRetryOnRateLimit_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retryOnRateLimit(ctx, func() error {
		return &slackapi.RateLimitedError{RetryAfter: time.Hour}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestEventToAttachment(t *testing.T) {
	att := eventToAttachment(notify.Event{
		Title:  "Model default promoted",
		Body:   "Run r1 is now current.",
		Color:  "#36a64f",
		Fields: []notify.Field{{Name: "bal_acc", Value: "0.8100", Short: true}},
	})
	if att.Title != "Model default promoted" || att.Fallback != att.Title {
		t.Errorf("Title/Fallback = %q/%q", att.Title, att.Fallback)
	}
	if att.Color != "#36a64f" {
		t.Errorf("Color = %q", att.Color)
	}
	if len(att.Fields) != 1 || att.Fields[0].Title != "bal_acc" || !att.Fields[0].Short {
		t.Errorf("Fields = %+v", att.Fields)
	}
}
