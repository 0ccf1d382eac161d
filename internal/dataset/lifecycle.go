package dataset

// Dataset lifecycle state machine. A transition names the target state (or the
// terminal Delete pseudo-transition); each transition carries an ordered plan
// of commands executed by the service layer. The allowed-source table and the
// command plans are fixed at compile time so that adding a transition or a
// command is an exhaustiveness-checked change, not a runtime registry lookup.

// Transition is a requested lifecycle transition.
type Transition string

// Supported transitions.
const (
	TransitionDelete         Transition = "Delete"
	TransitionReadyToPublish Transition = "ReadyToPublish"
	TransitionLive           Transition = "Live"
	TransitionRetire         Transition = "Retire"
)

// IsValid reports whether t is a known transition.
func (t Transition) IsValid() bool {
	switch t {
	case TransitionDelete, TransitionReadyToPublish, TransitionLive, TransitionRetire:
		return true
	}

	return false
}

// UsesLiveRecord reports whether the transition operates on the live record of
// the dataset rather than the draft.
func (t Transition) UsesLiveRecord() bool {
	return t == TransitionRetire
}

// AllowedSourceStatuses returns the statuses a dataset must currently be in
// for the transition to proceed.
func AllowedSourceStatuses(t Transition) []Status {
	switch t {
	case TransitionDelete:
		return []Status{StatusDraft, StatusReadyToPublish}
	case TransitionReadyToPublish:
		return []Status{StatusDraft}
	case TransitionLive:
		return []Status{StatusReadyToPublish}
	case TransitionRetire:
		return []Status{StatusLive}
	default:
		return nil
	}
}

// ValidateTransition checks that current is an allowed source status for the
// transition. It performs no mutation; a failure is a Conflict naming both the
// current and the required status.
func ValidateTransition(t Transition, current Status) error {
	allowed := AllowedSourceStatuses(t)
	for _, s := range allowed {
		if s == current {
			return nil
		}
	}

	return Conflict(CodeInvalidTransition,
		"transition to %s requires status in %v, dataset is %s", t, allowed, current)
}

// Command is one step of a transition plan. The service layer matches
// commands exhaustively; an unknown command is a programming error.
type Command int

// Transition commands, in no particular order.
const (
	// CommandDeleteDraft cascade-deletes the draft dataset and all of its
	// draft child records.
	CommandDeleteDraft Command = iota

	// CommandValidateConfigs re-validates the draft against the stricter
	// ready-to-publish requirements.
	CommandValidateConfigs

	// CommandSetReadyToPublish flips the draft status to ReadyToPublish.
	CommandSetReadyToPublish

	// CommandValidateDenorms checks that every denorm-referenced master
	// dataset is Live and enriches the denorm fields with the masters'
	// cache partition indices.
	CommandValidateDenorms

	// CommandAllocateCachePartition assigns a cache partition index to a
	// master dataset that does not have one yet.
	CommandAllocateCachePartition

	// CommandCompileDatasource compiles the ingestion and table specs and
	// upserts the draft datasource record.
	CommandCompileDatasource

	// CommandPublishDataset asks the orchestration collaborator to publish
	// the dataset.
	CommandPublishDataset

	// CommandCheckDenormUsage fails the transition when any other dataset
	// still denorm-references the one being retired.
	CommandCheckDenormUsage

	// CommandSetRetired marks the live dataset and all its child records
	// Retired.
	CommandSetRetired

	// CommandTerminateSupervisors requests termination of running ingestion
	// supervisors for the dataset's datasources.
	CommandTerminateSupervisors

	// CommandRestartPipeline asks the orchestration collaborator to restart
	// the ingestion pipeline.
	CommandRestartPipeline
)

// Step pairs a command with its failure policy. A best-effort step logs and
// swallows its error; all other steps abort the transition on failure.
type Step struct {
	Command    Command
	BestEffort bool
}

// Plan returns the ordered command plan of the transition. Commands execute
// strictly in this order; local-database commands of one transition run
// inside a single transaction.
func Plan(t Transition) []Step {
	switch t {
	case TransitionDelete:
		return []Step{
			{Command: CommandDeleteDraft},
		}
	case TransitionReadyToPublish:
		return []Step{
			{Command: CommandValidateConfigs},
			{Command: CommandSetReadyToPublish},
		}
	case TransitionLive:
		return []Step{
			{Command: CommandValidateDenorms},
			{Command: CommandAllocateCachePartition},
			{Command: CommandCompileDatasource},
			{Command: CommandPublishDataset},
		}
	case TransitionRetire:
		return []Step{
			{Command: CommandCheckDenormUsage},
			{Command: CommandSetRetired},
			{Command: CommandTerminateSupervisors, BestEffort: true},
			{Command: CommandRestartPipeline},
		}
	default:
		return nil
	}
}
