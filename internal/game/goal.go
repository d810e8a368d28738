package game

// Workflow names the event kind a mission goal reacts to.
type Workflow string

const (
	// WorkflowAcquire completes when a target entity is bought.
	WorkflowAcquire Workflow = "acquire"
	// WorkflowPowerup completes when a target add-on is installed on a
	// specific project.
	WorkflowPowerup Workflow = "powerup"
	// WorkflowCharge completes when a target entity starts a charge.
	WorkflowCharge Workflow = "charge"
	// WorkflowUpgrade completes when a target token is topped up.
	WorkflowUpgrade Workflow = "upgrade"
	// WorkflowAccumulate completes when a target token's absolute pool
	// amount reaches the goal amount.
	WorkflowAccumulate Workflow = "accumulate"
	// WorkflowCollectCash increments by collected cash until the goal
	// amount is reached.
	WorkflowCollectCash Workflow = "collect_cash"
	// WorkflowCollectProfiles increments by collected profiles until the
	// goal amount is reached.
	WorkflowCollectProfiles Workflow = "collect_profiles"
)

// Goal is one unit of mission progress. Once Complete is set it never
// reopens within the same goal generation.
type Goal struct {
	ID       string   `json:"id"`
	Mission  string   `json:"mission"`
	Workflow Workflow `json:"workflow"`
	Target   string   `json:"target"`
	// Project scopes powerup goals to a host project gestalt.
	Project string `json:"project,omitempty"`
	// Amount is the required amount for incremental and accumulation
	// goals; zero for presence-style goals.
	Amount   float64 `json:"amount,omitempty"`
	Current  float64 `json:"current,omitempty"`
	Complete bool    `json:"complete,omitempty"`
}
