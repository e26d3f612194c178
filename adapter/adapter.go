package adapter

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"github.com/qsysmcp/broker/changegroup"
	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/logger"
	"github.com/qsysmcp/broker/qsys"
	"github.com/qsysmcp/broker/recorder"
)

const maxBatchControls = 100 // spec §4.B / §8

// Adapter is the single dispatch surface every tool uses.
type Adapter struct {
	client *qsys.Client

	mu    sync.RWMutex
	cache *discoveryCache

	groups   *changegroup.Engine
	recorder *recorder.Recorder
}

// New constructs an Adapter over an already-built qsys.Client. The
// returned Adapter registers itself as the client's reconnect handler so
// the discovery cache is rebuilt before any queued invocation completes
// (spec §8).
func New(client *qsys.Client) *Adapter {
	a := &Adapter{
		client: client,
		cache:  newDiscoveryCache(),
	}
	a.groups = changegroup.NewEngine(a)
	a.groups.SetConnectedCheck(client.IsConnected)
	client.OnReconnect(func(outage time.Duration) {
		logger.Infow("core reconnected, rebuilding discovery cache", "outage", outage.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.RefreshDiscovery(ctx); err != nil {
			logger.Errorw("discovery refresh after reconnect failed", "error", err.Error())
		}
		for _, id := range a.groups.List() {
			a.groups.Invalidate(id)
		}
	})
	return a
}

// Groups exposes the change-group engine for direct use by tools and the
// recorder's monitored-set wiring.
func (a *Adapter) Groups() *changegroup.Engine { return a.groups }

// CurrentValue implements changegroup.ValueSource over the control index.
func (a *Adapter) CurrentValue(name string) (changegroup.ControlValue, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ctrl, ok := a.cache.controls[name]
	if !ok {
		return changegroup.ControlValue{}, false
	}
	return changegroup.ControlValue{Value: ctrl.Value, String: ctrl.String}, true
}

// wireComponent / wireControl mirror the Q-SYS QRC JSON shapes.
type wireComponent struct {
	Name       string            `json:"Name"`
	Type       string            `json:"Type"`
	Properties map[string]string `json:"Properties"`
}

type wireControl struct {
	Name      string  `json:"Name"`
	Type      string  `json:"Type"`
	Value     float64 `json:"Value"`
	String    string  `json:"String"`
	Position  float64 `json:"Position"`
	Direction string  `json:"Direction"`
}

// RefreshDiscovery rebuilds the component and control caches from the
// core. Called on first use and after every reconnect.
func (a *Adapter) RefreshDiscovery(ctx context.Context) error {
	raw, err := a.client.SendCommand(ctx, qsys.MethodComponentGetComponents, nil)
	if err != nil {
		return err
	}

	var wireComponents []wireComponent
	if err := json.Unmarshal(raw, &wireComponents); err != nil {
		return errors.WrapKind(err, errors.KindInternal, "decode component list")
	}

	components := make([]Component, 0, len(wireComponents))
	controls := make(map[string]Control)

	for _, wc := range wireComponents {
		components = append(components, Component{Name: wc.Name, Type: wc.Type, Properties: wc.Properties})

		ctrlRaw, err := a.client.SendCommand(ctx, qsys.MethodComponentGetControls, map[string]string{"Name": wc.Name})
		if err != nil {
			logger.Warnw("failed to fetch controls for component", "component", wc.Name, "error", err.Error())
			continue
		}
		var wireControls []wireControl
		if err := json.Unmarshal(ctrlRaw, &wireControls); err != nil {
			continue
		}
		for _, wctl := range wireControls {
			fq := wc.Name + "." + wctl.Name
			direction := DirectionRead
			if wctl.Direction == "read-write" || wctl.Direction == "" {
				direction = DirectionReadWrite
			}
			controls[fq] = Control{
				Component: wc.Name,
				Name:      wctl.Name,
				FQName:    fq,
				Type:      wctl.Type,
				Direction: direction,
				Value:     wctl.Value,
				String:    wctl.String,
				Position:  wctl.Position,
			}
		}
	}

	a.mu.Lock()
	a.cache.replace(components, controls)
	a.mu.Unlock()
	return nil
}

// ListComponents returns the discovery cache's components, optionally
// filtered by a regex on name.
func (a *Adapter) ListComponents(ctx context.Context, filter string) ([]Component, error) {
	if err := a.ensureDiscovered(ctx); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if filter == "" {
		out := make([]Component, len(a.cache.components))
		copy(out, a.cache.components)
		return out, nil
	}

	re, err := regexp.Compile(filter)
	if err != nil {
		return nil, errors.WrapKind(err, errors.KindValidation, "invalid component filter regex")
	}
	var out []Component
	for _, c := range a.cache.components {
		if re.MatchString(c.Name) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListControls returns every control belonging to component.
func (a *Adapter) ListControls(ctx context.Context, component string) ([]Control, error) {
	if err := a.ensureDiscovered(ctx); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	found := false
	for _, c := range a.cache.components {
		if c.Name == component {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Newfk(errors.KindUnknownComponent, "unknown component %q", component)
	}

	var out []Control
	for _, ctrl := range a.cache.controls {
		if ctrl.Component == component {
			out = append(out, ctrl)
		}
	}
	return out, nil
}

func (a *Adapter) ensureDiscovered(ctx context.Context) error {
	a.mu.RLock()
	empty := len(a.cache.components) == 0
	a.mu.RUnlock()
	if empty {
		return a.RefreshDiscovery(ctx)
	}
	return nil
}

// lookupControl returns the cached descriptor for a fully-qualified name.
func (a *Adapter) lookupControl(name string) (Control, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.cache.controls[name]
	return c, ok
}

func (a *Adapter) storeControl(c Control) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache.controls[c.FQName] = c
}
