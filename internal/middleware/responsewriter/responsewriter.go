// Package responsewriter wraps an http.ResponseWriter so the status code of
// the response can be read back once the handler has returned.
package responsewriter

import (
	"context"
	"errors"
	"net/http"
)

type recorderKey string

// RecorderKey is the context key for the Recorder of the current request.
const RecorderKey recorderKey = "response-recorder"

// Recorder is an http.ResponseWriter which remembers the status code.
type Recorder struct {
	http.ResponseWriter

	status int
}

// Wrap returns w as a Recorder. A Recorder is returned as is.
func Wrap(w http.ResponseWriter) *Recorder {
	if rec, ok := w.(*Recorder); ok {
		return rec
	}

	return &Recorder{ResponseWriter: w}
}

func (r *Recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}

	r.ResponseWriter.WriteHeader(status)
}

func (r *Recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.ResponseWriter.Write(b)
}

// Status returns the status code sent, or 0 when nothing was written yet.
func (r *Recorder) Status() int {
	return r.status
}

// Written reports whether the response has been started.
func (r *Recorder) Written() bool {
	return r.status != 0
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *Recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware wraps the response writer in a Recorder and injects it into
// the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := Wrap(w)
		ctx := context.WithValue(r.Context(), RecorderKey, rec)
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// FromContext retrieves the Recorder injected by Middleware.
func FromContext(ctx context.Context) (*Recorder, error) {
	rec, ok := ctx.Value(RecorderKey).(*Recorder)
	if !ok {
		return nil, errors.New("response recorder not found in context")
	}

	return rec, nil
}
