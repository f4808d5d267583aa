package domain

import (
	"fmt"
	"time"
)

// AgentState represents the lifecycle state of a managed agent process.
type AgentState string

const (
	AgentStateStarting AgentState = "starting"
	AgentStateReady    AgentState = "ready"
	AgentStateFailed   AgentState = "failed"
	AgentStateStopped  AgentState = "stopped"
)

// Skill describes one advertised capability area of an agent. Tags are the
// trigger terms the keyword router matches against; they are immutable once
// the agent reaches Ready.
type Skill struct {
	Name        string   `json:"name"          yaml:"name"`
	Description string   `json:"description"   yaml:"description"`
	Tags        []string `json:"tags"          yaml:"tags"`
	Examples    []string `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// AgentDescriptor is the registry's view of one agent: identity, declared
// skills, network address and lifecycle state. IDs are unique within a
// running network instance.
type AgentDescriptor struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Skills      []Skill    `json:"skills"`
	Host        string     `json:"host"`
	Port        int        `json:"port"`
	State       AgentState `json:"state"`
	StartedAt   time.Time  `json:"started_at,omitzero"`
}

// Address returns the host:port address the agent listens on.
func (d AgentDescriptor) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Endpoint returns the base HTTP URL for the agent's task endpoint.
func (d AgentDescriptor) Endpoint() string {
	return "http://" + d.Address()
}

// Tags returns the union of all skill tags, lowercased by convention at
// definition time.
func (d AgentDescriptor) Tags() []string {
	var tags []string
	for _, s := range d.Skills {
		tags = append(tags, s.Tags...)
	}
	return tags
}

// AgentCard is the self-describing document an agent serves at /card.
// Peers and routers build their view of an agent from this, never from
// shared memory.
type AgentCard struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Version     string  `json:"version"`
	URL         string  `json:"url"`
	Skills      []Skill `json:"skills"`
}

// ServerRef names one capability server and its MCP endpoint URL.
type ServerRef struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url"  yaml:"url"`
}

// AgentDefinition is the static configuration an agent process is started
// from: identity plus the capability servers and peers it should connect to.
type AgentDefinition struct {
	ID          string            `json:"id"            yaml:"id"`
	Name        string            `json:"name"          yaml:"name"`
	Description string            `json:"description"   yaml:"description"`
	Skills      []Skill           `json:"skills"        yaml:"skills"`
	// CapabilityServers lists servers in configuration order; on capability
	// name collisions the later-listed server wins.
	CapabilityServers []ServerRef `json:"capability_servers,omitempty" yaml:"capability_servers,omitempty"`
	// Peers maps a peer agent id to its address (host:port). Connected at startup.
	Peers map[string]string `json:"peers,omitempty" yaml:"peers,omitempty"`
}
