package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/qsys"
)

// ControlValueResult is one entry of get_control_values' response.
type ControlValueResult struct {
	Name        string
	Value       interface{}
	String      string
	TimestampMS int64
}

// ControlSetRequest is one entry of set_control_values' input. Ramp/Fade are
// accepted for wire compatibility with callers that still send them, but
// this broker has no ramping core command to forward them to — they are
// recorded on the result as ignored rather than silently dropped.
type ControlSetRequest struct {
	Name     string
	Value    interface{}
	Validate bool
	Ramp     *float64
	Fade     *float64
}

// ControlSetResult is one entry of set_control_values' response —
// per-entry atomicity means a batch call can partially succeed.
type ControlSetResult struct {
	Name          string
	OK            bool
	Error         string
	IgnoredFields []string `json:"IgnoredFields,omitempty"`
}

// GetControlValues fetches current values for up to maxBatchControls
// control names.
func (a *Adapter) GetControlValues(ctx context.Context, names []string) ([]ControlValueResult, error) {
	if len(names) > maxBatchControls {
		return nil, errors.Newfk(errors.KindValidation, "get_control_values accepts at most %d names, got %d", maxBatchControls, len(names))
	}
	if err := a.ensureDiscovered(ctx); err != nil {
		return nil, err
	}

	type wireReq struct {
		Name string `json:"Name"`
	}
	req := make([]wireReq, len(names))
	for i, n := range names {
		req[i] = wireReq{Name: n}
	}

	raw, err := a.client.SendCommand(ctx, qsys.MethodControlGet, req)
	if err != nil {
		return nil, err
	}

	var wire []struct {
		Name   string      `json:"Name"`
		Value  interface{} `json:"Value"`
		String string      `json:"String"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errors.WrapKind(err, errors.KindInternal, "decode control values")
	}

	now := nowMS()
	out := make([]ControlValueResult, 0, len(wire))
	for _, w := range wire {
		out = append(out, ControlValueResult{Name: w.Name, Value: w.Value, String: w.String, TimestampMS: now})
		if ctrl, ok := a.lookupControl(w.Name); ok {
			ctrl.Value = w.Value
			ctrl.String = w.String
			a.storeControl(ctrl)
		}
	}
	return out, nil
}

// SetControlValues writes values; each entry succeeds or fails
// independently (spec §4.F: "Atomicity is per-entry, not batch").
func (a *Adapter) SetControlValues(ctx context.Context, sets []ControlSetRequest) ([]ControlSetResult, error) {
	if err := a.ensureDiscovered(ctx); err != nil {
		return nil, err
	}

	results := make([]ControlSetResult, 0, len(sets))
	for _, s := range sets {
		type wireSet struct {
			Name  string      `json:"Name"`
			Value interface{} `json:"Value"`
		}

		var ignored []string
		if s.Ramp != nil {
			ignored = append(ignored, "ramp")
		}
		if s.Fade != nil {
			ignored = append(ignored, "fade")
		}

		_, err := a.client.SendCommand(ctx, qsys.MethodControlSet, wireSet{Name: s.Name, Value: s.Value})
		if err != nil {
			results = append(results, ControlSetResult{Name: s.Name, OK: false, Error: err.Error(), IgnoredFields: ignored})
			continue
		}

		if ctrl, ok := a.lookupControl(s.Name); ok {
			ctrl.Value = s.Value
			ctrl.String = fmt.Sprintf("%v", s.Value)
			a.storeControl(ctrl)
		}
		results = append(results, ControlSetResult{Name: s.Name, OK: true, IgnoredFields: ignored})
	}
	return results, nil
}

// ComponentGet fetches a component's controls, optionally filtered to a
// subset of control names.
func (a *Adapter) ComponentGet(ctx context.Context, component string, controlNames []string) ([]Control, error) {
	all, err := a.ListControls(ctx, component)
	if err != nil {
		return nil, err
	}
	if len(controlNames) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(controlNames))
	for _, n := range controlNames {
		want[n] = true
	}
	var out []Control
	for _, c := range all {
		if want[c.Name] {
			out = append(out, c)
		}
	}
	return out, nil
}

// CoreStatus mirrors the status object returned by query_core_status.
type CoreStatus struct {
	Platform    string
	State       string
	DesignName  string
	DesignID    string
	IsRedundant bool
	IsEmulator  bool
}

// QueryCoreStatus issues StatusGet and maps the result.
func (a *Adapter) QueryCoreStatus(ctx context.Context) (CoreStatus, error) {
	raw, err := a.client.SendCommand(ctx, qsys.MethodStatusGet, nil)
	if err != nil {
		return CoreStatus{}, err
	}

	var wire struct {
		Platform    string `json:"Platform"`
		State       string `json:"State"`
		DesignName  string `json:"DesignName"`
		DesignCode  string `json:"DesignCode"`
		IsRedundant bool   `json:"IsRedundant"`
		IsEmulator  bool   `json:"IsEmulator"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return CoreStatus{}, errors.WrapKind(err, errors.KindInternal, "decode core status")
	}

	return CoreStatus{
		Platform:    wire.Platform,
		State:       wire.State,
		DesignName:  wire.DesignName,
		DesignID:    wire.DesignCode,
		IsRedundant: wire.IsRedundant,
		IsEmulator:  wire.IsEmulator,
	}, nil
}
