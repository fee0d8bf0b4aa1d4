package scheduler

// Group starts and stops several schedulers as one unit.
type Group struct {
	members []*Scheduler
}

func NewGroup(members ...*Scheduler) *Group {
	return &Group{members: members}
}

// Start returns true if at least one member was started.
func (g *Group) Start() bool {
	started := false
	for _, s := range g.members {
		if s.Start() {
			started = true
		}
	}
	return started
}

// Stop returns true if at least one member was stopped.
func (g *Group) Stop() bool {
	stopped := false
	for _, s := range g.members {
		if s.Stop() {
			stopped = true
		}
	}
	return stopped
}

// IsRunning reports whether any member is running.
func (g *Group) IsRunning() bool {
	for _, s := range g.members {
		if s.IsRunning() {
			return true
		}
	}
	return false
}

func (g *Group) Status() []Status {
	out := make([]Status, 0, len(g.members))
	for _, s := range g.members {
		out = append(out, s.Status())
	}
	return out
}
