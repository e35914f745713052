package notify

import (
	"context"
	"errors"
	"testing"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent     []*mail.SGMailV3
	response *rest.Response
	err      error
}

func (f *fakeSender) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	return f.response, f.err
}

func newTestAlerter(t *testing.T, sender *fakeSender) *SendGridAlerter {
	t.Helper()
	a, err := NewSendGridAlerter("SG.key", "shop@ribon.vn", "owner@ribon.vn", cmtlog.NewNopLogger())
	require.NoError(t, err)
	a.client = sender
	return a
}

func TestSendGridAlerter(t *testing.T) {
	sender := &fakeSender{response: &rest.Response{StatusCode: 202}}
	a := newTestAlerter(t, sender)

	require.NoError(t, a.Alert(context.Background(), "Low stock", "Matcha <50g"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Low stock", sender.sent[0].Subject)
	assert.Equal(t, "shop@ribon.vn", sender.sent[0].From.Address)
	require.Len(t, sender.sent[0].Content, 2)
	assert.Equal(t, "<pre>Matcha &lt;50g</pre>", sender.sent[0].Content[1].Value)
}

func TestSendGridAlerterFailures(t *testing.T) {
	a := newTestAlerter(t, &fakeSender{response: &rest.Response{StatusCode: 401, Body: "unauthorized"}})
	err := a.Alert(context.Background(), "s", "b")
	assert.ErrorContains(t, err, "status=401")

	a = newTestAlerter(t, &fakeSender{err: errors.New("dial tcp: timeout")})
	assert.ErrorContains(t, a.Alert(context.Background(), "s", "b"), "timeout")
}

func TestNewSendGridAlerterRequiresSettings(t *testing.T) {
	_, err := NewSendGridAlerter("", "a@b", "c@d", cmtlog.NewNopLogger())
	assert.Error(t, err)
	_, err = NewSendGridAlerter("key", "", "c@d", cmtlog.NewNopLogger())
	assert.Error(t, err)
	_, err = NewSendGridAlerter("key", "a@b", "", cmtlog.NewNopLogger())
	assert.Error(t, err)
}
