package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"creative-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(code int, err error) error {
	return &codedError{err: err, code: code}
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

func ParseRequest[T any](r *http.Request) (T, error) {
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		slog.Error("error parsing request body", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}
	return data, nil
}

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := r.ParseForm(); err != nil {
		slog.Error("error parsing form", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	err := schema.NewDecoder().Decode(&data, r.Form)
	if err != nil {
		slog.Error("error decoding query params", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	return data, nil
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, res)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var cerr *codedError
	if errors.As(err, &cerr) {
		http.Error(w, err.Error(), cerr.code)
		if cerr.code == http.StatusInternalServerError {
			slog.Error("internal server error received in endpoint", "error", err)
		}
		return
	}
	slog.Error("recieved non coded error from endpoint", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// EventStream is consumed by SSEHandler until it is closed.
type EventStream <-chan api.Event

// SSEHandler writes each event as a server-sent event named after its type.
// While the stream is idle a heartbeat event is written every heartbeat
// interval. Errors returned before streaming starts are written as normal
// http errors.
func SSEHandler(heartbeat time.Duration, handler func(r *http.Request) (EventStream, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream, err := handler(r)
		if err != nil {
			writeError(w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			slog.Error("response writer does not support flushing")
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		var ticker *time.Ticker
		var ticks <-chan time.Time
		if heartbeat > 0 {
			ticker = time.NewTicker(heartbeat)
			defer ticker.Stop()
			ticks = ticker.C
		}

		for {
			var event api.Event
			select {
			case <-r.Context().Done():
				return
			case <-ticks:
				event = api.NewHeartbeatEvent()
			case e, ok := <-stream:
				if !ok {
					return
				}
				event = e
				if ticker != nil {
					ticker.Reset(heartbeat)
				}
			}

			if err := writeEvent(w, event); err != nil {
				slog.Error("error writing event to stream", "event", event.EventType(), "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, event api.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error serializing %s event: %w", event.EventType(), err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func WriteJsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
	}
}

func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	param := chi.URLParam(r, key)

	if len(param) == 0 {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "missing {%v} url parameter", key)
	}

	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "invalid uuid '%v' url parameter provided: %w", key, err)
	}

	return id, nil
}
