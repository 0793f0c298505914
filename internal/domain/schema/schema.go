// Package schema mirrors the subset of the LCA application's data model
// that lcarun reads and writes over IPC. Field names follow the
// application's JSON representation.
package schema

// RefType names the kind of entity a Ref points to.
type RefType string

// Entity types used by the workflow.
const (
	RefProcess        RefType = "Process"
	RefImpactMethod   RefType = "ImpactMethod"
	RefImpactCategory RefType = "ImpactCategory"
	RefFlow           RefType = "Flow"
	RefProductSystem  RefType = "ProductSystem"
)

// Ref is a descriptor of an entity stored in the application database.
type Ref struct {
	Type        RefType `json:"@type,omitempty"`
	ID          string  `json:"@id"`
	Name        string  `json:"name,omitempty"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	RefUnit     string  `json:"refUnit,omitempty"`
}

// NewRef returns a bare reference carrying only type and id, which is all
// the application needs to resolve it.
func NewRef(t RefType, id string) Ref {
	return Ref{Type: t, ID: id}
}

// IsZero reports whether the reference points nowhere.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

// AllocationType selects the allocation method applied during calculation.
type AllocationType string

// Allocation methods understood by the application.
const (
	AllocationUseDefault AllocationType = "USE_DEFAULT_ALLOCATION"
	AllocationNone       AllocationType = "NO_ALLOCATION"
	AllocationPhysical   AllocationType = "PHYSICAL_ALLOCATION"
	AllocationEconomic   AllocationType = "ECONOMIC_ALLOCATION"
	AllocationCausal     AllocationType = "CAUSAL_ALLOCATION"
)

// ParameterRedef overrides a global or process parameter for one calculation.
type ParameterRedef struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Context *Ref    `json:"context,omitempty"`
}

// CalculationSetup is the request record submitted for a calculation.
type CalculationSetup struct {
	Target              Ref              `json:"target"`
	ImpactMethod        *Ref             `json:"impactMethod,omitempty"`
	Amount              float64          `json:"amount,omitempty"`
	Unit                *Ref             `json:"unit,omitempty"`
	Allocation          AllocationType   `json:"allocation,omitempty"`
	WithCosts           bool             `json:"withCosts,omitempty"`
	WithRegionalization bool             `json:"withRegionalization,omitempty"`
	Parameters          []ParameterRedef `json:"parameters,omitempty"`
}

// ResultState is the readiness report of a result handle.
type ResultState struct {
	ID          string `json:"@id"`
	IsReady     bool   `json:"isReady"`
	IsScheduled bool   `json:"isScheduled"`
	Error       string `json:"error,omitempty"`
	Time        int64  `json:"time,omitempty"`
}

// Failed reports whether the application gave up on the calculation.
func (s ResultState) Failed() bool {
	return s.Error != ""
}

// TechFlow pairs a provider (process) with the product or waste flow it
// delivers. The provider is absent for some system-level flows.
type TechFlow struct {
	Provider *Ref `json:"provider,omitempty"`
	Flow     *Ref `json:"flow,omitempty"`
}

// ProviderID returns the provider's id or an empty string.
func (t TechFlow) ProviderID() string {
	if t.Provider == nil {
		return ""
	}
	return t.Provider.ID
}

// ImpactValue is the amount of one impact category.
type ImpactValue struct {
	ImpactCategory Ref     `json:"impactCategory"`
	Amount         float64 `json:"amount"`
}
