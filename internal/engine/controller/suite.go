package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/assembler"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/logging"
	"github.com/GriffinCanCode/jsbench/internal/shared/id"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// RunSuite runs every case of suite with the suite config applied and
// returns their terminal states in case order. Parallel suites submit all
// cases up front; otherwise each case finishes before the next starts.
// When ctx ends, cases still running are cancelled.
func (c *Controller) RunSuite(ctx context.Context, suite types.Suite, mode types.Mode, typescript bool) ([]Event, error) {
	seen := make(map[string]bool, len(suite.Cases))
	for i, tc := range suite.Cases {
		if tc.ID == "" {
			return nil, fmt.Errorf("%w: case %d has no id", ErrInvalidCase, i)
		}
		if seen[tc.ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidCase, tc.ID)
		}
		seen[tc.ID] = true
	}

	log := c.logger.With(zap.String("run_id", id.NewRunID().String()))
	log.Info("Running suite",
		zap.String("name", suite.Config.Name),
		zap.Int("cases", len(suite.Cases)),
		zap.Bool("parallel", suite.Config.Parallel),
		zap.String("mode", string(mode)),
	)

	submit := func(tc types.TestCase) error {
		merged, setup := assembler.Merge(suite.Config, tc)
		return c.Submit(mode, merged, Options{Setup: setup, TypeScript: typescript})
	}

	results := make([]Event, len(suite.Cases))
	if suite.Config.Parallel {
		for i, tc := range suite.Cases {
			if err := submit(tc); err != nil {
				c.cancelAll(suite.Cases[:i])
				return nil, err
			}
		}
		for i, tc := range suite.Cases {
			ev, err := c.Wait(ctx, tc.ID)
			if err != nil {
				c.cancelAll(suite.Cases[i:])
				return nil, err
			}
			results[i] = ev
		}
		log.Info("Suite finished", zap.Int("cases", len(results)))
		return results, nil
	}

	for i, tc := range suite.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := submit(tc); err != nil {
			return nil, err
		}
		ev, err := c.Wait(ctx, tc.ID)
		if err != nil {
			c.cancelAll(suite.Cases[i : i+1])
			return nil, err
		}
		results[i] = ev
	}
	log.Info("Suite finished", zap.Int("cases", len(results)))
	return results, nil
}

func (c *Controller) cancelAll(cases []types.TestCase) {
	for _, tc := range cases {
		if err := c.Cancel(tc.ID); err != nil {
			c.logger.Debug("Cancel skipped", logging.CaseID(tc.ID), zap.Error(err))
		}
	}
}
