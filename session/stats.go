package session

// Stats is a snapshot of the manager's counters.
type Stats struct {
	Driver   string
	Active   int // sessions acquired and not yet released
	Launched int // browsers started since the manager was created
	Crashed  int // browsers discarded after failing the liveness probe
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Driver:   m.driver.Name(),
		Active:   int(m.active.Load()),
		Launched: int(m.launched.Load()),
		Crashed:  int(m.crashed.Load()),
	}
}
