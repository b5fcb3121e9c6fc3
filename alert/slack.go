package alert

import (
	"bytes"
	"context"

	"github.com/slack-go/slack"
)

// SlackPoster posts through the Slack Web API.
type SlackPoster struct {
	client *slack.Client
}

// NewSlackPoster authenticates with a bot token. Options are passed to the
// Slack client, e.g. slack.OptionAPIURL for tests.
func NewSlackPoster(token string, opts ...slack.Option) *SlackPoster {
	return &SlackPoster{client: slack.New(token, opts...)}
}

func (p *SlackPoster) PostMessage(ctx context.Context, channel, text string) error {
	_, _, err := p.client.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	return err
}

// PostFile uploads data with text as its initial comment.
func (p *SlackPoster) PostFile(ctx context.Context, channel, text string, data []byte, filename string) error {
	_, err := p.client.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:        channel,
		InitialComment: text,
		Reader:         bytes.NewReader(data),
		FileSize:       len(data),
		Filename:       filename,
		Title:          filename,
	})
	return err
}
