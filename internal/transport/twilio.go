package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"recibos/internal/phone"
	"recibos/pkg/platform/sentinel"
)

const DefaultAPIBaseURL = "https://api.twilio.com"

// TwilioConfig holds the credentials and addressing for TwilioSender.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	From           string
	CountryPrefix  string
	APIBaseURL     string
	StatusCallback string
	Timeout        time.Duration
}

// APIError is a non-retryable rejection from the Messages API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio status %d code %d: %s", e.Status, e.Code, e.Message)
}

// TwilioSender creates messages through the twilio-go Messages API client.
type TwilioSender struct {
	cfg    TwilioConfig
	http   *http.Client
	api    *openapi.ApiService
	logger *slog.Logger
}

type TwilioOption func(*TwilioSender)

func WithHTTPClient(c *http.Client) TwilioOption {
	return func(s *TwilioSender) {
		if c != nil {
			s.http = c
		}
	}
}

func WithLogger(logger *slog.Logger) TwilioOption {
	return func(s *TwilioSender) {
		s.logger = logger
	}
}

func NewTwilio(cfg TwilioConfig, opts ...TwilioOption) *TwilioSender {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	s := &TwilioSender{
		cfg:    cfg,
		http:   &http.Client{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	hc := *s.http
	hc.Timeout = cfg.Timeout
	s.http = &hc
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		base, err := url.Parse(cfg.APIBaseURL)
		if err == nil && base.Host != "" {
			s.http.Transport = &baseURLTransport{base: base, next: s.http.Transport}
		} else {
			s.logger.Warn("ignoring invalid twilio api base url", "api_base_url", cfg.APIBaseURL)
		}
	}

	c := &twclient.Client{
		Credentials: twclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  s.http,
	}
	c.SetAccountSid(cfg.AccountSID)
	s.api = twilio.NewRestClientWithParams(twilio.ClientParams{Client: c}).Api
	return s
}

// Send returns sentinel.ErrUnavailable for timeouts, network failures, 429
// and 5xx responses; other rejections are *APIError.
func (s *TwilioSender) Send(ctx context.Context, msg Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type result struct {
		msg *openapi.ApiV2010Message
		err error
	}
	// The generated client takes no context; the http.Client timeout bounds
	// the call once ctx gives up on it.
	done := make(chan result, 1)
	params := s.params(msg)
	go func() {
		m, err := s.api.CreateMessage(params)
		done <- result{msg: m, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("send message: %w: %w", sentinel.ErrUnavailable, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return "", classify(res.err)
	}
	if res.msg == nil || res.msg.Sid == nil || *res.msg.Sid == "" {
		return "", errors.New("twilio response without message sid")
	}
	return *res.msg.Sid, nil
}

func classify(err error) error {
	var restErr *twclient.TwilioRestError
	if !errors.As(err, &restErr) {
		return fmt.Errorf("send message: %w: %w", sentinel.ErrUnavailable, err)
	}
	apiErr := &APIError{Status: restErr.Status, Code: restErr.Code, Message: restErr.Message}
	if restErr.Status == http.StatusTooManyRequests || restErr.Status >= 500 {
		return fmt.Errorf("send message: %w: %w", sentinel.ErrUnavailable, apiErr)
	}
	return apiErr
}

func (s *TwilioSender) params(msg Message) *openapi.CreateMessageParams {
	p := &openapi.CreateMessageParams{}
	p.SetTo(phone.WhatsAppAddress(msg.To, s.cfg.CountryPrefix))
	p.SetFrom(phone.WhatsAppAddress(s.cfg.From, s.cfg.CountryPrefix))
	if msg.TemplateSID != "" {
		p.SetContentSid(msg.TemplateSID)
		if len(msg.Variables) > 0 {
			vars, _ := json.Marshal(msg.Variables)
			p.SetContentVariables(string(vars))
		}
	} else {
		p.SetBody(msg.Body)
	}
	if msg.MediaURL != "" {
		p.SetMediaUrl([]string{msg.MediaURL})
	}
	if s.cfg.StatusCallback != "" {
		p.SetStatusCallback(s.cfg.StatusCallback)
	}
	return p
}

// baseURLTransport points requests built for api.twilio.com at another origin.
type baseURLTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *baseURLTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.base.Scheme
	out.URL.Host = t.base.Host
	out.Host = t.base.Host
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(out)
}
