package model

import "time"

// Agent is a registered automation agent. The gateway only manages the
// registry entry; execution happens downstream.
type Agent struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// InvokeRequest asks a single agent to run with the given input.
type InvokeRequest struct {
	AgentID string                 `json:"agent_id"`
	Input   map[string]interface{} `json:"input,omitempty"`
}

// BatchRequest runs several invocations in one call.
type BatchRequest struct {
	Invocations []InvokeRequest `json:"invocations"`
}

// InvokeResult is the synchronous acknowledgement for an invocation. The
// actual run proceeds asynchronously; its progress is published on the
// event stream.
type InvokeResult struct {
	InvocationID string `json:"invocation_id"`
	AgentID      string `json:"agent_id"`
	Status       string `json:"status"`
}

// Trigger is a scheduler entry that fires an agent on a cron expression.
type Trigger struct {
	ID        string    `json:"id" db:"id"`
	AgentID   string    `json:"agent_id" db:"agent_id"`
	Schedule  string    `json:"schedule" db:"schedule"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Workflow is a named multi-step pipeline of agent invocations.
type Workflow struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Steps     int       `json:"steps" db:"steps"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// WorkflowRun records one execution of a workflow.
type WorkflowRun struct {
	ID         string    `json:"id" db:"id"`
	WorkflowID string    `json:"workflow_id" db:"workflow_id"`
	Status     string    `json:"status" db:"status"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
}
