package webhook

import (
	"log/slog"
	"net/http"
	"strings"

	twclient "github.com/twilio/twilio-go/client"

	metadata "recibos/pkg/platform/middleware/metadata"
	request "recibos/pkg/platform/middleware/request"
)

// HeaderTwilioSignature carries the request signature.
const HeaderTwilioSignature = "X-Twilio-Signature"

// SignatureValidator checks Twilio request signatures against the public
// URL Twilio was configured with.
type SignatureValidator struct {
	validator twclient.RequestValidator
	baseURL   string
}

// NewSignatureValidator validates against publicBaseURL, the origin Twilio
// was configured with.
func NewSignatureValidator(authToken, publicBaseURL string) *SignatureValidator {
	return &SignatureValidator{
		validator: twclient.NewRequestValidator(authToken),
		baseURL:   strings.TrimRight(publicBaseURL, "/"),
	}
}

// Valid reports whether r carries the signature for its form.
func (v *SignatureValidator) Valid(r *http.Request) bool {
	got := r.Header.Get(HeaderTwilioSignature)
	if got == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	// Twilio never repeats a parameter name in webhook posts.
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return v.validator.Validate(v.baseURL+r.URL.RequestURI(), params, got)
}

func (v *SignatureValidator) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Valid(r) {
				ctx := r.Context()
				logger.WarnContext(ctx, "twilio signature rejected",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
					"client_ip", metadata.GetClientIP(ctx),
				)
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
