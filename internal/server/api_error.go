package server

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

type apiErrorEnvelope struct {
	Error apiErrorPayload `json:"error"`
}

type apiErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	RequestID string `json:"request_id"`
}

// writeAPIError writes the error envelope. Message and hint are scrubbed of
// anything that looks like a credential.
func writeAPIError(w http.ResponseWriter, status int, code string, message string, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErrorEnvelope{
		Error: apiErrorPayload{
			Code:      code,
			Message:   sanitizeErrText(message),
			Hint:      sanitizeErrText(hint),
			RequestID: newRequestID(),
		},
	})
}

func newRequestID() string {
	return uuid.NewString()
}

var (
	reBearer = regexp.MustCompile(`(?i)\bAuthorization:\s*Bearer\s+[A-Za-z0-9._-]{6,}`)
	reTokenQ = regexp.MustCompile(`(?i)([?&](token|ticket)=)[^&\s"]+`)
	reJSONAT = regexp.MustCompile(`(?i)("?(access_token|refresh_token)"?\s*:\s*")[^"]+`)
)

func sanitizeErrText(s string) string {
	if s == "" {
		return ""
	}
	out := reBearer.ReplaceAllString(s, "Authorization: Bearer REDACTED")
	out = reTokenQ.ReplaceAllString(out, "$1REDACTED")
	out = reJSONAT.ReplaceAllString(out, `$1REDACTED`)
	return out
}

