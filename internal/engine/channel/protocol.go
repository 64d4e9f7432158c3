// Package channel is the message protocol between the controller and the
// execution harness, plus the harness worker that serves it.
//
// The controller never calls the harness directly: it sends a Request,
// may later send a Cancel for the same id, and reads Responses. Every
// accepted Request yields exactly one terminal Response unless it is
// cancelled first, in which case none is emitted for that attempt.
package channel

import (
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// Request asks the harness to run one test case
type Request struct {
	ID         string         `json:"id"`
	Attempt    int            `json:"attempt"`
	Mode       types.Mode     `json:"mode"`
	TestCase   types.TestCase `json:"testCase"`
	Setup      string         `json:"setup,omitempty"`
	TypeScript bool           `json:"typescript,omitempty"`
}

// Response is the terminal outcome of a Request. Exactly one of Benchmark,
// Repl or Error is set.
type Response struct {
	ID        string                 `json:"id"`
	Attempt   int                    `json:"attempt"`
	Mode      types.Mode             `json:"mode"`
	Status    types.Status           `json:"status"`
	Benchmark *types.BenchmarkResult `json:"benchmark,omitempty"`
	Repl      *types.ReplResult      `json:"repl,omitempty"`
	Error     *types.RunError        `json:"error,omitempty"`
}

// Cancel asks the harness to stop work for an id. A non-zero Attempt only
// matches that attempt, so a late cancel never hits a resubmission.
type Cancel struct {
	ID      string `json:"id"`
	Attempt int    `json:"attempt,omitempty"`
}

// Transport is the controller's view of the harness
type Transport interface {
	Send(req Request) error
	Cancel(c Cancel) bool
	Responses() <-chan Response
}

func success(req Request) Response {
	return Response{ID: req.ID, Attempt: req.Attempt, Mode: req.Mode, Status: types.StatusSuccess}
}

func failure(req Request, err error) Response {
	return Response{
		ID:      req.ID,
		Attempt: req.Attempt,
		Mode:    req.Mode,
		Status:  types.StatusError,
		Error:   types.AsRunError(err),
	}
}
