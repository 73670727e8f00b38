package platform

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pagebridge/pagebridge/internal/activity"
)

// Client is the page platform collaborator used by the adapter core.
type Client interface {
	// VerifyWebhook runs the subscription-validation handshake: it checks the
	// verify token and writes the challenge (or a 403) to the response.
	VerifyWebhook(ctx context.Context, r *http.Request, w http.ResponseWriter) error
	// SendContent posts a message to the platform and returns the
	// platform-assigned resource id.
	SendContent(ctx context.Context, a activity.Activity, sourceID string) (string, error)
	// GetThreadByID resolves a conversation thread. A nil thread with a nil
	// error means the thread does not exist.
	GetThreadByID(ctx context.Context, threadID string) (*Thread, error)
	// HandoffControl switches the thread's active controller. The call is
	// idempotent: it does not read prior controller state.
	HandoffControl(ctx context.Context, controller Controller, thread *Thread) error
}

// Options configures the page REST client.
type Options struct {
	BaseURL           string
	Version           string
	AccessToken       string
	AppSecret         string
	VerifyToken       string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// PageClient is the HTTP implementation of Client against the page REST API.
type PageClient struct {
	logger      *slog.Logger
	http        *http.Client
	limiter     *rate.Limiter
	baseURL     string
	version     string
	accessToken string
	appSecret   string
	verifyToken string
}

// NewPageClient creates a PageClient with the given options.
func NewPageClient(log *slog.Logger, opts Options) *PageClient {
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "v1"
	}
	return &PageClient{
		logger:      log.With(slog.String("component", "page_client")),
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		baseURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		version:     version,
		accessToken: strings.TrimSpace(opts.AccessToken),
		appSecret:   strings.TrimSpace(opts.AppSecret),
		verifyToken: strings.TrimSpace(opts.VerifyToken),
	}
}

// VerifyWebhook implements the hub challenge handshake. The caller decides the
// branch by checking for the hub.mode query parameter before any body parsing.
func (c *PageClient) VerifyWebhook(ctx context.Context, r *http.Request, w http.ResponseWriter) error {
	if r == nil || w == nil {
		return fmt.Errorf("request and response are required")
	}
	query := r.URL.Query()
	token := strings.TrimSpace(query.Get(QueryHubVerifyToken))
	challenge := query.Get(QueryHubChallenge)
	if c.verifyToken == "" || token != c.verifyToken {
		c.logger.Warn("webhook verification rejected", slog.String("mode", query.Get(QueryHubMode)))
		w.WriteHeader(http.StatusForbidden)
		return nil
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, challenge); err != nil {
		return fmt.Errorf("write challenge: %w", err)
	}
	c.logger.Info("webhook verified", slog.String("mode", query.Get(QueryHubMode)))
	return nil
}

// ClassifyRequest determines what kind of event a webhook delivery carries.
// Presence of the hub.mode query parameter marks a verification handshake and
// wins over whatever the body contains.
func (c *PageClient) ClassifyRequest(r *http.Request, body []byte) Classification {
	if r != nil && r.URL.Query().Has(QueryHubMode) {
		return Classification{Kind: EventVerifyWebhook}
	}
	return ClassifyPayload(body)
}

// ValidateSignature checks the X-Hub-Signature-256 header against the raw
// body. Validation is skipped when no app secret is configured.
func (c *PageClient) ValidateSignature(body []byte, header string) error {
	if c.appSecret == "" {
		return nil
	}
	header = strings.TrimSpace(header)
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return fmt.Errorf("missing or malformed signature header")
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

type sendContentRequest struct {
	SourceID string         `json:"source_id"`
	Message  contentMessage `json:"message"`
}

type contentMessage struct {
	Text string `json:"text"`
}

type sendContentResponse struct {
	ID string `json:"id"`
}

// SendContent posts message content to the platform on behalf of the page.
func (c *PageClient) SendContent(ctx context.Context, a activity.Activity, sourceID string) (string, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return "", fmt.Errorf("source id is required")
	}
	payload := sendContentRequest{
		SourceID: sourceID,
		Message:  contentMessage{Text: a.Text},
	}
	var resp sendContentResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("content"), payload, &resp); err != nil {
		return "", fmt.Errorf("send content: %w", err)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", fmt.Errorf("send content: platform returned empty resource id")
	}
	return resp.ID, nil
}

// GetThreadByID fetches a conversation thread. 404 maps to a nil thread.
func (c *PageClient) GetThreadByID(ctx context.Context, threadID string) (*Thread, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	var thread Thread
	err := c.doJSON(ctx, http.MethodGet, c.endpoint("threads", threadID), nil, &thread)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	return &thread, nil
}

type controlRequest struct {
	Controller Controller `json:"controller"`
}

// HandoffControl instructs the platform to switch the thread's controller.
func (c *PageClient) HandoffControl(ctx context.Context, controller Controller, thread *Thread) error {
	if thread == nil || strings.TrimSpace(thread.ID) == "" {
		return fmt.Errorf("thread is required")
	}
	if controller != ControllerBot && controller != ControllerAgent {
		return fmt.Errorf("unsupported controller: %s", controller)
	}
	payload := controlRequest{Controller: controller}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("threads", thread.ID, "control"), payload, nil); err != nil {
		return fmt.Errorf("handoff control for thread %s: %w", thread.ID, err)
	}
	c.logger.Info("thread control switched",
		slog.String("thread_id", thread.ID),
		slog.String("controller", controller.String()),
	)
	return nil
}

func (c *PageClient) endpoint(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, c.version)
	for _, part := range parts {
		segments = append(segments, url.PathEscape(part))
	}
	return c.baseURL + "/" + strings.Join(segments, "/")
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("platform returned HTTP %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

func (c *PageClient) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		query := req.URL.Query()
		query.Set("access_token", c.accessToken)
		req.URL.RawQuery = query.Encode()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
