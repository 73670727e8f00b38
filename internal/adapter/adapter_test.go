package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagebridge/pagebridge/internal/activity"
	"github.com/pagebridge/pagebridge/internal/handoff"
	"github.com/pagebridge/pagebridge/internal/platform"
)

type sentContent struct {
	SourceID string
	Text     string
}

// fakeClient records platform interactions and an ordered event trace shared
// with the fake bot.
type fakeClient struct {
	threads      map[string]*platform.Thread
	sent         []sentContent
	sendErr      error
	signatureErr error
	verifyCalls  int
	handoffCalls int
	trace        *[]string
}

func newFakeClient(trace *[]string) *fakeClient {
	return &fakeClient{
		threads: map[string]*platform.Thread{},
		trace:   trace,
	}
}

func (f *fakeClient) record(event string) {
	if f.trace != nil {
		*f.trace = append(*f.trace, event)
	}
}

func (f *fakeClient) VerifyWebhook(ctx context.Context, r *http.Request, w http.ResponseWriter) error {
	f.verifyCalls++
	f.record("verify")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(r.URL.Query().Get(platform.QueryHubChallenge)))
	return nil
}

func (f *fakeClient) SendContent(ctx context.Context, a activity.Activity, sourceID string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentContent{SourceID: sourceID, Text: a.Text})
	f.record("send")
	return fmt.Sprintf("res-%d", len(f.sent)), nil
}

func (f *fakeClient) GetThreadByID(ctx context.Context, threadID string) (*platform.Thread, error) {
	f.record("lookup")
	return f.threads[threadID], nil
}

func (f *fakeClient) HandoffControl(ctx context.Context, controller platform.Controller, thread *platform.Thread) error {
	f.handoffCalls++
	f.record("handoff")
	thread.Controller = controller
	return nil
}

func (f *fakeClient) ClassifyRequest(r *http.Request, body []byte) platform.Classification {
	if r != nil && r.URL.Query().Has(platform.QueryHubMode) {
		return platform.Classification{Kind: platform.EventVerifyWebhook}
	}
	return platform.ClassifyPayload(body)
}

func (f *fakeClient) ValidateSignature(body []byte, header string) error {
	return f.signatureErr
}

type fakeBot struct {
	turns []activity.Activity
	err   error
	trace *[]string
}

func (b *fakeBot) OnTurn(ctx context.Context, turn *TurnContext) error {
	b.turns = append(b.turns, turn.Activity())
	if b.trace != nil {
		*b.trace = append(*b.trace, "turn")
	}
	return b.err
}

type recordingRecognizer struct {
	verdict handoff.Target
	calls   int
}

func (r *recordingRecognizer) Recognize(a activity.Activity) handoff.Target {
	r.calls++
	return r.verdict
}

func contentImportedBody(threadID, sourceID, text string) string {
	return fmt.Sprintf(
		`{"object":"page","entry":[{"event":"content_imported","thread_id":%q,"source_id":%q,"message":{"id":"m1","text":%q}}]}`,
		threadID, sourceID, text,
	)
}

func dispatch(t *testing.T, a *Adapter, bot Bot, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	require.NoError(t, a.ProcessRequest(context.Background(), r, w, bot))
	return w
}

func TestProcessRequestVerificationShortCircuits(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)
	bot := &fakeBot{}
	a := New(nil, client, handoff.NewPatternRecognizer())

	// Body is deliberately garbage: verification must branch before parsing.
	w := dispatch(t, a, bot, http.MethodGet, "/webhook?hub.mode=subscribe&hub.challenge=c42", "{not json")
	assert.Equal(t, 1, client.verifyCalls)
	assert.Equal(t, "c42", w.Body.String())
	assert.Empty(t, bot.turns)
}

func TestProcessRequestContentImportedAgentVerdict(t *testing.T) {
	t.Parallel()

	trace := []string{}
	client := newFakeClient(&trace)
	client.threads["T1"] = &platform.Thread{ID: "T1", Controller: platform.ControllerBot}
	bot := &fakeBot{trace: &trace}
	a := New(nil, client, handoff.NewPatternRecognizer())

	dispatch(t, a, bot, http.MethodPost, "/webhook", contentImportedBody("T1", "S1", "I want to talk to a human"))

	assert.Equal(t, 1, client.handoffCalls)
	assert.Equal(t, platform.ControllerAgent, client.threads["T1"].Controller)
	assert.Empty(t, bot.turns, "bot pipeline must not run when verdict routes to agent")
}

func TestProcessRequestContentImportedNoneVerdict(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)
	bot := &fakeBot{}
	a := New(nil, client, handoff.NewPatternRecognizer())

	dispatch(t, a, bot, http.MethodPost, "/webhook", contentImportedBody("T1", "S1", "what are your hours?"))

	assert.Zero(t, client.handoffCalls)
	require.Len(t, bot.turns, 1)
	assert.Equal(t, "what are your hours?", bot.turns[0].Text)
}

func TestProcessRequestBotVerdictTransfersThenRunsTurn(t *testing.T) {
	t.Parallel()

	trace := []string{}
	client := newFakeClient(&trace)
	client.threads["T1"] = &platform.Thread{ID: "T1", Controller: platform.ControllerAgent}
	bot := &fakeBot{trace: &trace}
	a := New(nil, client, handoff.NewPatternRecognizer())

	dispatch(t, a, bot, http.MethodPost, "/webhook", contentImportedBody("T1", "S1", "ok, back to the bot"))

	assert.Equal(t, platform.ControllerBot, client.threads["T1"].Controller)
	require.Len(t, bot.turns, 1)
	assert.Equal(t, []string{"lookup", "handoff", "turn"}, trace,
		"transfer must complete before the bot turn")
}

func TestProcessRequestThreadNotFound(t *testing.T) {
	t.Parallel()

	t.Run("bot verdict still runs turn", func(t *testing.T) {
		t.Parallel()
		client := newFakeClient(nil)
		bot := &fakeBot{}
		a := New(nil, client, handoff.NewPatternRecognizer())

		dispatch(t, a, bot, http.MethodPost, "/webhook", contentImportedBody("unknown", "S1", "back to bot"))
		assert.Zero(t, client.handoffCalls)
		assert.Len(t, bot.turns, 1)
	})

	t.Run("agent verdict stays fail-closed", func(t *testing.T) {
		t.Parallel()
		client := newFakeClient(nil)
		bot := &fakeBot{}
		a := New(nil, client, handoff.NewPatternRecognizer())

		dispatch(t, a, bot, http.MethodPost, "/webhook", contentImportedBody("unknown", "S1", "talk to a human"))
		assert.Zero(t, client.handoffCalls)
		assert.Empty(t, bot.turns)
	})
}

func TestProcessRequestInterventionBypassesRecognition(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)
	bot := &fakeBot{}
	recognizer := &recordingRecognizer{verdict: handoff.TargetAgent}
	a := New(nil, client, recognizer)

	body := `{"object":"page","entry":[{"event":"intervention","thread_id":"T1","source_id":"S1","message":{"id":"m1","text":"agent note"}}]}`
	dispatch(t, a, bot, http.MethodPost, "/webhook", body)

	assert.Zero(t, recognizer.calls, "control events must bypass handoff recognition")
	assert.Len(t, bot.turns, 1)
}

func TestProcessRequestUnknownDropped(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)
	bot := &fakeBot{}
	a := New(nil, client, handoff.NewPatternRecognizer())

	dispatch(t, a, bot, http.MethodPost, "/webhook", `{"object":"page","entry":[{"event":"reaction"}]}`)
	assert.Empty(t, bot.turns)
	assert.Zero(t, client.handoffCalls)
	assert.Empty(t, client.sent)
}

func TestProcessRequestInputContract(t *testing.T) {
	t.Parallel()

	a := New(nil, newFakeClient(nil), nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}"))

	err := a.ProcessRequest(context.Background(), nil, w, &fakeBot{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	err = a.ProcessRequest(context.Background(), r, nil, &fakeBot{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	err = a.ProcessRequest(context.Background(), r, w, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestProcessRequestSignatureMismatch(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)
	client.signatureErr = errors.New("bad signature")
	bot := &fakeBot{}
	a := New(nil, client, nil)

	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(contentImportedBody("T1", "S1", "hi")))
	w := httptest.NewRecorder()
	err := a.ProcessRequest(context.Background(), r, w, bot)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Empty(t, bot.turns)
}

func TestSendActivitiesFiltersAndOrders(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)
	a := New(nil, client, nil)

	batch := []activity.Activity{
		activity.NewMessage("first", activity.ChannelData{SourceID: "S1", ThreadID: "T1"}),
		{ID: "t1", Type: activity.TypeTyping},
		{ID: "m3", Type: activity.TypeMessage, Text: "no channel data"},
		activity.NewMessage("second", activity.ChannelData{SourceID: "S2", ThreadID: "T1"}),
	}
	responses, err := a.SendActivities(context.Background(), batch)
	require.NoError(t, err)

	// N=4, M=2 skipped: exactly 2 responses, ids correspond to sent messages.
	require.Len(t, responses, 2)
	require.Len(t, client.sent, 2)
	assert.Equal(t, "S1", client.sent[0].SourceID)
	assert.Equal(t, "S2", client.sent[1].SourceID)
	for _, resp := range responses {
		assert.NotEmpty(t, resp.ID)
	}
}

func TestSendActivitiesNilBatch(t *testing.T) {
	t.Parallel()

	a := New(nil, newFakeClient(nil), nil)
	_, err := a.SendActivities(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSendActivitiesPartialFailure(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)
	a := New(nil, client, nil)
	ok := activity.NewMessage("ok", activity.ChannelData{SourceID: "S1", ThreadID: "T1"})

	responses, err := a.SendActivities(context.Background(), []activity.Activity{ok})
	require.NoError(t, err)
	require.Len(t, responses, 1)

	client.sendErr = errors.New("platform down")
	responses, err = a.SendActivities(context.Background(), []activity.Activity{ok})
	require.Error(t, err)
	assert.Empty(t, responses)
}

func TestUpdateDeleteNotSupported(t *testing.T) {
	t.Parallel()

	a := New(nil, newFakeClient(nil), nil)
	assert.ErrorIs(t, a.UpdateActivity(context.Background(), activity.Activity{}), ErrNotSupported)
	assert.ErrorIs(t, a.DeleteActivity(context.Background(), "m1"), ErrNotSupported)
}

func TestHandoffIdempotent(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)
	client.threads["T1"] = &platform.Thread{ID: "T1", Controller: platform.ControllerBot}
	a := New(nil, client, nil)

	ok, err := a.Handoff(context.Background(), handoff.TargetAgent, "T1")
	require.NoError(t, err)
	assert.True(t, ok)
	first := client.threads["T1"].Controller

	ok, err = a.Handoff(context.Background(), handoff.TargetAgent, "T1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first, client.threads["T1"].Controller)
	assert.Equal(t, platform.ControllerAgent, client.threads["T1"].Controller)
}

func TestHandoffNotFoundAndInvalidTarget(t *testing.T) {
	t.Parallel()

	a := New(nil, newFakeClient(nil), nil)

	ok, err := a.Handoff(context.Background(), handoff.TargetAgent, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Handoff(context.Background(), handoff.TargetNone, "T1")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTurnContextSendsThroughAdapter(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)
	a := New(nil, client, nil)
	turn := NewTurnContext(a, activity.NewMessage("in", activity.ChannelData{SourceID: "S1", ThreadID: "T1"}))

	responses, err := turn.SendActivities(context.Background(),
		activity.NewMessage("out", activity.ChannelData{SourceID: "S1", ThreadID: "T1"}))
	require.NoError(t, err)
	assert.Len(t, responses, 1)
	assert.Equal(t, "out", client.sent[0].Text)
}
