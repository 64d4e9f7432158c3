package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/controller"
	"github.com/GriffinCanCode/jsbench/internal/shared/id"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
	"github.com/GriffinCanCode/jsbench/internal/shared/utils"
)

// RunRequest submits one test case
type RunRequest struct {
	TestCase   types.TestCase `json:"testCase"`
	Setup      string         `json:"setup"`
	TypeScript *bool          `json:"typescript"`
	// Wait holds the response until the case reaches a terminal state
	Wait bool `json:"wait"`
}

// SuiteRequest runs every case of a suite
type SuiteRequest struct {
	Suite      types.Suite `json:"suite"`
	Mode       types.Mode  `json:"mode"`
	TypeScript *bool       `json:"typescript"`
}

// SuiteResponse carries the terminal state of every case, in suite order
type SuiteResponse struct {
	Name    string             `json:"name"`
	Results []controller.Event `json:"results"`
}

func (h *Handlers) useTypeScript(requested *bool) bool {
	if requested != nil {
		return *requested
	}
	return h.typescript
}

// Bench runs a test case in benchmark mode
func (h *Handlers) Bench(c *gin.Context) {
	h.run(c, types.ModeBenchmark)
}

// Repl runs a test case in REPL mode
func (h *Handlers) Repl(c *gin.Context) {
	h.run(c, types.ModeRepl)
}

func (h *Handlers) run(c *gin.Context, mode types.Mode) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}

	tc := req.TestCase
	if tc.ID == "" {
		tc.ID = id.NewCaseID().String()
	}
	if err := utils.ValidateTestCase(tc); err != nil {
		badRequest(c, err)
		return
	}
	if err := utils.ValidateCode(req.Setup, "setup"); err != nil {
		badRequest(c, err)
		return
	}

	opts := controller.Options{Setup: req.Setup, TypeScript: h.useTypeScript(req.TypeScript)}
	if err := h.controller.Submit(mode, tc, opts); err != nil {
		h.fail(c, err)
		return
	}

	if !req.Wait {
		ev, _ := h.controller.State(tc.ID)
		c.JSON(http.StatusAccepted, ev)
		return
	}

	ev, err := h.controller.Wait(c.Request.Context(), tc.ID)
	if err != nil {
		// Nobody is left to read the result
		if cancelErr := h.controller.Cancel(tc.ID); cancelErr == nil {
			h.logger.Info("Cancelled case after client left", zap.String("case_id", tc.ID))
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// ListCases returns every known case ordered by id
func (h *Handlers) ListCases(c *gin.Context) {
	events := h.controller.List()
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	c.JSON(http.StatusOK, gin.H{"cases": events, "count": len(events)})
}

// GetCase returns one case's state
func (h *Handlers) GetCase(c *gin.Context) {
	ev, ok := h.controller.State(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown test case"})
		return
	}
	c.JSON(http.StatusOK, ev)
}

// CancelCase cancels a running case, or forgets a finished one when
// ?forget=true
func (h *Handlers) CancelCase(c *gin.Context) {
	caseID := c.Param("id")

	if forget, _ := strconv.ParseBool(c.Query("forget")); forget {
		if err := h.controller.Forget(caseID); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": caseID, "forgotten": true})
		return
	}

	if err := h.controller.Cancel(caseID); err != nil {
		h.fail(c, err)
		return
	}
	ev, _ := h.controller.State(caseID)
	c.JSON(http.StatusOK, ev)
}

// RunSuite runs a suite and waits for all of its cases
func (h *Handlers) RunSuite(c *gin.Context) {
	var req SuiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Mode == "" {
		req.Mode = types.ModeBenchmark
	}
	if !req.Mode.Valid() {
		badRequest(c, fmt.Errorf("unknown mode %q", req.Mode))
		return
	}
	if err := utils.ValidateSuite(req.Suite); err != nil {
		badRequest(c, err)
		return
	}

	results, err := h.controller.RunSuite(c.Request.Context(), req.Suite, req.Mode, h.useTypeScript(req.TypeScript))
	if err != nil {
		if c.Request.Context().Err() != nil {
			err = fmt.Errorf("suite aborted: %w", context.Cause(c.Request.Context()))
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuiteResponse{Name: req.Suite.Config.Name, Results: results})
}
