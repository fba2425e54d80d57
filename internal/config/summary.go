package config

import "collabbot/internal/domain"

// Summary is the secret-free view of a Config served to operators.
type Summary struct {
	Path          string                 `json:"path,omitempty"`
	Addr          string                 `json:"addr"`
	Storage       StorageSummary         `json:"storage"`
	Collaboration CollaborationConfig    `json:"collaboration"`
	Defaults      ModelDefaults          `json:"defaults"`
	Services      map[domain.Engine]bool `json:"services"`
	Agents        []string               `json:"agents"`
}

type StorageSummary struct {
	Backend string `json:"backend"`
	Driver  string `json:"driver"`
	Format  string `json:"format"`
}

func (c Config) Summary() Summary {
	agents, _ := c.ResolveAgents()
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name)
	}
	return Summary{
		Path: c.Path,
		Addr: c.Server.Addr,
		Storage: StorageSummary{
			Backend: c.Storage.Backend,
			Driver:  c.Storage.Driver,
			Format:  c.Storage.Format,
		},
		Collaboration: c.Collaboration,
		Defaults:      c.Defaults,
		Services:      c.AvailableServices(),
		Agents:        names,
	}
}
