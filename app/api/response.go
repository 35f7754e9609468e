package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Envelope accumulates named data keys and a success/error state for a
// single response. The state moves one way: once an error is set the
// envelope cannot go back to accumulating data, and vice versa. In
// debug mode a misuse panics so it surfaces during development; in
// production it is a logged no-op.
type Envelope struct {
	start  time.Time
	debug  bool
	data   gin.H
	errMsg string
	status int
}

func NewEnvelope(debug bool) *Envelope {
	return &Envelope{
		start:  time.Now(),
		debug:  debug,
		data:   gin.H{},
		status: http.StatusOK,
	}
}

func (e *Envelope) AddData(key string, value any) *Envelope {
	if e.errMsg != "" {
		e.misuse(fmt.Sprintf("AddData(%q) called after SetError", key))
		return e
	}

	e.data[key] = value
	return e
}

func (e *Envelope) SetError(message string, status int) *Envelope {
	if len(e.data) > 0 {
		e.misuse(fmt.Sprintf("SetError(%q) called after data was added", message))
		return e
	}

	e.errMsg = message
	e.status = status
	return e
}

// Package finalizes the envelope into an HTTP status and JSON body.
func (e *Envelope) Package() (int, gin.H) {
	body := gin.H{
		"success": e.errMsg == "",
		"data":    e.data,
	}

	if e.errMsg != "" {
		body["error"] = e.errMsg
	}

	if e.debug {
		body["debug"] = gin.H{
			"duration_ms": time.Since(e.start).Milliseconds(),
		}
	}

	return e.status, body
}

func (e *Envelope) misuse(detail string) {
	if e.debug {
		panic("envelope misuse: " + detail)
	}
	slog.Error("Envelope misuse", "detail", detail)
}
