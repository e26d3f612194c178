package adapter

import (
	"strings"

	"github.com/qsysmcp/broker/changegroup"
	"github.com/qsysmcp/broker/recorder"
)

// SetRecorder wires the change-group engine's emitted events into rec, and
// makes CreateChangeGroup/DestroyChangeGroup manage rec's monitored set
// (spec §4.D: only monitored groups' changes are persisted).
func (a *Adapter) SetRecorder(rec *recorder.Recorder) {
	a.mu.Lock()
	a.recorder = rec
	a.mu.Unlock()

	a.groups.Subscribe(func(ev changegroup.Event) {
		if rec == nil || rec.Disabled() {
			return
		}
		for _, c := range ev.Changes {
			component, control := splitControlName(c.Name)
			rec.Record(recorder.Event{
				TimestampMS:   ev.TimestampMS,
				GroupID:       ev.GroupID,
				ComponentName: component,
				ControlName:   control,
				ControlPath:   c.Name,
				Value:         c.Value,
				PreviousValue: c.Previous,
				Source:        recorder.SourcePoll,
			})
		}
	})
}

// splitControlName divides a fully-qualified "Component.control" name into
// its component and control parts. Names with no component prefix (rare,
// e.g. a named global control) report an empty component.
func splitControlName(fqName string) (component, control string) {
	if i := strings.LastIndex(fqName, "."); i >= 0 {
		return fqName[:i], fqName[i+1:]
	}
	return "", fqName
}
