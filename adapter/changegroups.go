package adapter

import (
	"time"

	"github.com/google/uuid"

	"github.com/qsysmcp/broker/changegroup"
)

// CreateChangeGroup registers a new (or returns an existing) group. An
// empty groupID is filled in with a generated id, since spec callers may
// omit it when they have no natural name for the group.
func (a *Adapter) CreateChangeGroup(groupID string, pollRateSeconds float64) (*changegroup.Group, error) {
	if groupID == "" {
		groupID = uuid.NewString()
	}

	g, err := a.groups.Create(groupID)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	rec := a.recorder
	a.mu.RUnlock()
	if rec != nil {
		rec.Monitor(groupID)
	}

	if pollRateSeconds > 0 {
		if err := a.groups.AutoPoll(groupID, time.Duration(pollRateSeconds*float64(time.Second))); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddControlsToChangeGroup adds control names to a group's membership.
func (a *Adapter) AddControlsToChangeGroup(groupID string, names []string) error {
	if len(names) > maxBatchControls {
		return errBatchTooLarge(len(names))
	}
	return a.groups.AddControls(groupID, names)
}

// RemoveControlsFromChangeGroup removes control names from a group.
func (a *Adapter) RemoveControlsFromChangeGroup(groupID string, names []string) error {
	return a.groups.RemoveControls(groupID, names)
}

// PollChangeGroup runs one poll and returns the emitted event. When showAll
// is true, Changes reports every membership control's current value instead
// of only the ones that moved since the last poll.
func (a *Adapter) PollChangeGroup(groupID string, showAll bool) (changegroup.Event, error) {
	if showAll {
		return a.groups.PollAll(groupID)
	}
	return a.groups.Poll(groupID)
}

// ClearChangeGroup empties a group's membership.
func (a *Adapter) ClearChangeGroup(groupID string) error {
	return a.groups.Clear(groupID)
}

// DestroyChangeGroup removes a group and cancels its auto-poll timer.
func (a *Adapter) DestroyChangeGroup(groupID string) error {
	a.mu.RLock()
	rec := a.recorder
	a.mu.RUnlock()
	if rec != nil {
		rec.Unmonitor(groupID)
	}
	return a.groups.Destroy(groupID)
}

// ListChangeGroups returns the ids of all live groups.
func (a *Adapter) ListChangeGroups() []string {
	return a.groups.List()
}

// InvalidateChangeGroup discards a group's last-seen values.
func (a *Adapter) InvalidateChangeGroup(groupID string) error {
	return a.groups.Invalidate(groupID)
}

// AutoPoll enables or replaces a group's auto-poll timer.
func (a *Adapter) AutoPoll(groupID string, rateSeconds float64) error {
	return a.groups.AutoPoll(groupID, time.Duration(rateSeconds*float64(time.Second)))
}
