package console

import (
	"fmt"
	"sort"

	"neocore/internal/services"
)

type dynamicCommand struct {
	doc    services.CommandDoc
	source string
}

// RefreshIfNeeded rebuilds the discovered command table when the service
// registry generation moved since the last build.
func (c *Console) RefreshIfNeeded() {
	c.dynMu.Lock()
	stale := c.cachedGen != c.registry.Generation()
	c.dynMu.Unlock()
	if stale {
		c.refresh(false)
	}
}

// Refresh rebuilds the discovered command table unconditionally.
func (c *Console) Refresh() {
	c.refresh(true)
}

func (c *Console) refresh(force bool) {
	entries, gen := c.registry.Snapshot()
	c.dynMu.Lock()
	if !force && c.cachedGen == gen {
		c.dynMu.Unlock()
		return
	}
	c.dynMu.Unlock()

	// Describe runs without the console lock so a service may call back in.
	table := discover(entries)

	c.dynMu.Lock()
	c.dynamic = table
	c.cachedGen = gen
	c.dynMu.Unlock()
}

// discover derives commands from every description. Services are visited
// in id order, so a later id wins a name collision.
func discover(entries []services.Entry) map[string]dynamicCommand {
	table := make(map[string]dynamicCommand)
	for _, entry := range entries {
		desc, err := services.ParseDescription(entry.Service.Describe())
		if err != nil || desc.Console == nil {
			continue
		}
		for _, doc := range desc.Console.Commands {
			normalized, ok := doc.Normalize(entry.ID)
			if !ok {
				continue
			}
			table[normalized.Name] = dynamicCommand{doc: normalized, source: entry.ID}
		}
	}
	return table
}

func (c *Console) dynamicLines() []string {
	c.dynMu.Lock()
	defer c.dynMu.Unlock()
	lines := make([]string, 0, len(c.dynamic))
	for name, cmd := range c.dynamic {
		lines = append(lines, fmt.Sprintf("%s - %s (%s)", name, cmd.doc.Help, cmd.source))
	}
	sort.Strings(lines)
	return lines
}

// CachedGeneration reports the registry generation the table was built at.
func (c *Console) CachedGeneration() uint64 {
	c.dynMu.Lock()
	defer c.dynMu.Unlock()
	return c.cachedGen
}
