package queue

import (
	"sync"
	"time"

	"github.com/pannenhilfe24/callcore/internal/types"
)

// AgentTracker maintains the availability state of all support agents
type AgentTracker struct {
	agents map[string]*types.AgentInfo // agentID -> current state
	mu     sync.RWMutex
}

// NewAgentTracker creates a new agent tracker
func NewAgentTracker() *AgentTracker {
	return &AgentTracker{
		agents: make(map[string]*types.AgentInfo),
	}
}

// SetAvailable marks an agent ready to take queued calls. AvailableSince
// is only reset when the agent flips from unavailable to available, so
// longest-idle routing stays fair across repeated status posts.
func (t *AgentTracker) SetAvailable(agentID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, exists := t.agents[agentID]
	if exists && existing.Available {
		if name != "" {
			existing.Name = name
		}
		return
	}

	t.agents[agentID] = &types.AgentInfo{
		AgentID:        agentID,
		Name:           name,
		Available:      true,
		AvailableSince: time.Now(),
	}
}

// SetUnavailable marks an agent as not accepting queued calls
func (t *AgentTracker) SetUnavailable(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, exists := t.agents[agentID]; exists {
		existing.Available = false
	}
}

// GetAvailable returns a copy of all currently available agents
func (t *AgentTracker) GetAvailable() []types.AgentInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]types.AgentInfo, 0, len(t.agents))
	for _, a := range t.agents {
		if a.Available {
			result = append(result, *a)
		}
	}
	return result
}

// GetAll returns a copy of every known agent's state
func (t *AgentTracker) GetAll() []types.AgentInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]types.AgentInfo, 0, len(t.agents))
	for _, a := range t.agents {
		result = append(result, *a)
	}
	return result
}

// AvailableCount returns the number of agents ready for assignment
func (t *AgentTracker) AvailableCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, a := range t.agents {
		if a.Available {
			count++
		}
	}
	return count
}
