package types

import "time"

// QueueEntry is a support-bound caller waiting for an available agent.
// Partner-origin entries sort ahead of customer-origin entries; within a
// priority class ordering is FIFO by EnqueuedAt.
type QueueEntry struct {
	CallID          string    `json:"callId"`
	CallerType      PartyType `json:"callerType"`
	EnqueuedAt      time.Time `json:"enqueuedAt"`
	AssignedAgentID string    `json:"assignedAgentId,omitempty"`
}

// AgentInfo is the availability state of one support agent.
type AgentInfo struct {
	AgentID        string    `json:"agentId"`
	Name           string    `json:"name,omitempty"`
	Available      bool      `json:"available"`
	AvailableSince time.Time `json:"availableSince"`
}

// QueueSnapshot is the dashboard view of the support queue.
type QueueSnapshot struct {
	PartnersWaiting  int       `json:"partnersWaiting"`
	CustomersWaiting int       `json:"customersWaiting"`
	LongestWaitSecs  float64   `json:"longestWaitSecs"`
	FreeAgents       int       `json:"freeAgents"`
	Timestamp        time.Time `json:"timestamp"`
}
