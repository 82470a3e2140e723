package constant

type GenerationStatus string

const (
	GenerationStatusQueued     GenerationStatus = "queued"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

func (s GenerationStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// CanTransitionTo reports whether queued -> processing -> {completed, failed} allows s -> next.
// A queued record may fail directly when its task dies before processing starts.
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	switch s {
	case GenerationStatusQueued:
		return next == GenerationStatusQueued || next == GenerationStatusProcessing || next == GenerationStatusFailed
	case GenerationStatusProcessing:
		return next == GenerationStatusProcessing || next.IsTerminal()
	default:
		return false
	}
}

type ProviderName string

const (
	ProviderLuma        ProviderName = "luma_dream_machine"
	ProviderReplicate   ProviderName = "replicate"
	ProviderHuggingFace ProviderName = "huggingface"
	ProviderMock        ProviderName = "mock_fallback"
)

func (p ProviderName) String() string {
	return string(p)
}

type DispatcherKind string

const (
	DispatcherMemory   DispatcherKind = "memory"
	DispatcherRabbitMQ DispatcherKind = "rabbitmq"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
