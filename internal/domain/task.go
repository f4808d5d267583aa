package domain

// TaskStatus is the terminal status of a handled task.
type TaskStatus string

const (
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// TaskRequest is the wire form of one agent call: free-text content plus an
// optional allowed-agent-id list the receiving agent may delegate to.
type TaskRequest struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Content        string   `json:"content"`
	AllowedAgents  []string `json:"allowed_agents,omitempty"`
}

// TaskResult is the structured response to a TaskRequest.
type TaskResult struct {
	TaskID  string     `json:"task_id"`
	AgentID string     `json:"agent_id"`
	Content string     `json:"content"`
	Status  TaskStatus `json:"status"`
	Error   string     `json:"error,omitempty"`
}

// PipelineStage records one completed (or failed) stage of a multi-agent
// workflow: which agent ran, what it received and what it produced.
type PipelineStage struct {
	AgentID string `json:"agent_id"`
	Input   string `json:"input"`
	Output  string `json:"output"`
}

// PipelineContext accumulates stage records during a pipeline run. It is
// owned by the orchestrating call and discarded after completion; on failure
// it carries the completed prefix so nothing done is silently lost.
type PipelineContext struct {
	Query  string          `json:"query"`
	Stages []PipelineStage `json:"stages"`
}

// Output returns the final stage's output, or "" for an empty pipeline.
func (p *PipelineContext) Output() string {
	if len(p.Stages) == 0 {
		return ""
	}
	return p.Stages[len(p.Stages)-1].Output
}
