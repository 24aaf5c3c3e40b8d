package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"html/template"
	"net/http"
	"time"

	"apple2chat/pkg/chattypes"
)

// kindRateLimited marks 429 responses from the rate limiter or the provider.
const kindRateLimited chattypes.ErrorKind = "rate_limited"

type errorBody struct {
	Kind    chattypes.ErrorKind `json:"kind"`
	Message string              `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// turnView is a transcript turn as sent to the browser. HTML is the
// sanitized rendering; Content keeps the raw text.
type turnView struct {
	ID        string         `json:"id"`
	Role      chattypes.Role `json:"role"`
	Content   string         `json:"content"`
	HTML      template.HTML  `json:"html"`
	Timestamp time.Time      `json:"timestamp"`
}

type transcriptResponse struct {
	Messages []turnView                `json:"messages"`
	Settings chattypes.SessionSettings `json:"settings"`
}

type chatResponse struct {
	Transcript []turnView `json:"transcript"`
	Reply      turnView   `json:"reply"`
}

type modelsResponse struct {
	Provider string                   `json:"provider"`
	Models   []chattypes.CatalogModel `json:"models"`
	Selected string                   `json:"selected"`
}

type settingsResponse struct {
	Settings chattypes.SessionSettings `json:"settings"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type modelRequest struct {
	Model string `json:"model"`
}

type keyRequest struct {
	APIKey string `json:"api_key"`
}

type settingsRequest struct {
	ChainOfThought *bool `json:"chain_of_thought"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a classified error onto an HTTP status and error kind.
func statusFor(err error) (int, chattypes.ErrorKind) {
	var svcErr *chattypes.ExternalServiceError
	if errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusTooManyRequests {
		return http.StatusTooManyRequests, kindRateLimited
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge, chattypes.KindValidation
	}

	var kinded interface{ Kind() chattypes.ErrorKind }
	if !errors.As(err, &kinded) {
		return http.StatusInternalServerError, chattypes.KindOf(err)
	}

	switch kinded.Kind() {
	case chattypes.KindValidation, chattypes.KindConfiguration:
		return http.StatusBadRequest, kinded.Kind()
	case chattypes.KindBusy:
		return http.StatusConflict, kinded.Kind()
	default:
		return http.StatusBadGateway, kinded.Kind()
	}
}

func errorPayload(err error) errorBody {
	_, kind := statusFor(err)
	return errorBody{Kind: kind, Message: err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: err.Error()}})
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return chattypes.NewValidationError("invalid request body: %v", err)
	}
	return nil
}

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// escapeText renders a user turn as escaped plain text.
func escapeText(text string) template.HTML {
	return template.HTML("<p>" + html.EscapeString(text) + "</p>")
}
