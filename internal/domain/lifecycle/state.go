package lifecycle

// State is the model lifecycle state machine position.
type State string

// Lifecycle states. Promoted and RolledBack are terminal for one retrain
// cycle; both settle back to Loaded.
const (
	StateUnloaded   State = "unloaded"
	StateLoaded     State = "loaded"
	StateRetraining State = "retraining"
	StateValidating State = "validating"
	StatePromoted   State = "promoted"
	StateRolledBack State = "rolled_back"
)
