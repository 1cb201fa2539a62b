package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/logging"
	"github.com/stratus-io/stratus/pkg/provider"
)

// RefreshResult describes what changed for one resource during refresh.
type RefreshResult struct {
	Address string
	Drifted bool
	Removed bool
}

// Refresh reads every tracked resource back from its provider and updates
// state to match reality. Resources that no longer exist are dropped.
func (e *Engine) Refresh(ctx context.Context, state *ir.State) ([]RefreshResult, error) {
	var (
		results []RefreshResult
		kept    []*ir.ResourceState
		changed bool
	)

	for _, rs := range state.Resources {
		prov, err := e.Registry.Get(rs.Provider)
		if err != nil {
			return nil, err
		}

		current, err := json.Marshal(rs.Outputs)
		if err != nil {
			return nil, fmt.Errorf("encoding state for %s: %w", rs.Addr(), err)
		}
		id, _ := rs.Outputs["id"].(string)

		resp, err := prov.Read(ctx, &provider.ReadRequest{
			Type:         rs.Type,
			ID:           id,
			CurrentState: current,
		})
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rs.Addr(), err)
		}

		if !resp.Exists {
			logging.Warn("resource no longer exists, removing from state", "resource", rs.Addr())
			results = append(results, RefreshResult{Address: rs.Addr(), Removed: true})
			changed = true
			continue
		}

		var outputs map[string]any
		if len(resp.NewState) > 0 {
			if err := json.Unmarshal(resp.NewState, &outputs); err != nil {
				return nil, fmt.Errorf("decoding refreshed state for %s: %w", rs.Addr(), err)
			}
		}

		drifted := !jsonEqual(outputs, rs.Outputs)
		if drifted {
			logging.Info("drift detected", "resource", rs.Addr())
			rs.Outputs = outputs
			changed = true
		}
		results = append(results, RefreshResult{Address: rs.Addr(), Drifted: drifted})
		kept = append(kept, rs)
	}

	state.Resources = kept
	if changed {
		state.Serial++
	}
	return results, nil
}

// Import adopts an existing object into state without creating it. The
// provider is asked to read the object by id; the declared configuration
// supplies inputs for future diffs.
func (e *Engine) Import(ctx context.Context, state *ir.State, res *ir.Resource, id string) error {
	if existing := state.Find(res.Addr()); existing != nil {
		return fmt.Errorf("%s is already tracked in state", res.Addr())
	}

	prov, err := e.Registry.Get(res.Provider)
	if err != nil {
		return err
	}

	resp, err := prov.Read(ctx, &provider.ReadRequest{Type: res.Type, ID: id})
	if err != nil {
		return fmt.Errorf("reading %s: %w", id, err)
	}
	if !resp.Exists {
		return fmt.Errorf("no object with id %q found", id)
	}

	var outputs map[string]any
	if len(resp.NewState) > 0 {
		if err := json.Unmarshal(resp.NewState, &outputs); err != nil {
			return fmt.Errorf("decoding imported state: %w", err)
		}
	}

	state.Resources = append(state.Resources, &ir.ResourceState{
		Type:       res.Type,
		Name:       res.Name,
		Provider:   res.Provider,
		Inputs:     res.Properties,
		InputsHash: HashProperties(res.Properties),
		Outputs:    outputs,
	})
	state.Serial++
	logging.Info("imported resource", "resource", res.Addr(), "id", id)
	return nil
}

func jsonEqual(a, b any) bool {
	da, errA := json.Marshal(a)
	db, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(da) == string(db)
}
