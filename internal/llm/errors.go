package llm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrMissingAPIKey is a configuration error: no credential was provided.
	ErrMissingAPIKey = errors.New("API key is not set")
	// ErrUnauthorized means the endpoint rejected the credential.
	ErrUnauthorized = errors.New("API key rejected")
	// ErrEmptyResponse means the model returned no usable payload.
	ErrEmptyResponse = errors.New("no data returned from the model")
	// ErrMalformedResponse means the payload could not be decoded.
	ErrMalformedResponse = errors.New("could not parse model response")
	// ErrInvalidQuestion means a returned question broke the data model.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrUnstableNetwork replaces transport failures once retries are exhausted.
	ErrUnstableNetwork = errors.New("network connection is unstable")
	// ErrGenerationFailed is used when no better description is available.
	ErrGenerationFailed = errors.New("question generation failed")
)

var authMarkers = []string{"api key", "api_key", "apikey", "permission", "unauthorized", "unauthenticated"}

// isAuthError reports whether err means the credential is invalid.
func isAuthError(err error) bool {
	if isPayloadError(err) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isAuthStatus(apiErr.HTTPStatusCode) {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isAuthStatus(reqErr.HTTPStatusCode) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// isPayloadError reports whether err describes the model's output rather
// than the call itself.
func isPayloadError(err error) bool {
	return errors.Is(err, ErrEmptyResponse) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrInvalidQuestion)
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// isTransportError reports whether err came from the network layer rather
// than from the API or the payload.
func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// finalError turns the last attempt's error into what callers should see.
func finalError(lastErr error) error {
	if lastErr == nil || lastErr.Error() == "" {
		return ErrGenerationFailed
	}
	if isTransportError(lastErr) {
		return fmt.Errorf("%w: %w", ErrUnstableNetwork, lastErr)
	}
	return lastErr
}
