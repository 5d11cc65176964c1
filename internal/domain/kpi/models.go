package kpi

import "time"

// Definition is a department-scoped metric template. Weight contributes to
// an aggregate score and should sum to 100 across one employee's KPIs; that
// is reported by the review summary but not enforced at write time.
type Definition struct {
	ID               string    `json:"id"`
	DepartmentID     string    `json:"departmentId,omitempty"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Unit             string    `json:"unit"`
	Target           float64   `json:"target"`
	Weight           float64   `json:"weight"`
	Reward           float64   `json:"reward"`
	Penalty          float64   `json:"penalty"`
	RewardThreshold  float64   `json:"rewardThreshold"`
	PenaltyThreshold float64   `json:"penaltyThreshold"`
	RewardType       string    `json:"rewardType"`
	PenaltyType      string    `json:"penaltyType"`
	MaxReward        float64   `json:"maxReward"`
	Frequency        string    `json:"frequency"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HistoryEntry is one row of a record's append-only audit trail.
type HistoryEntry struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changedAt"`
	ChangedBy string    `json:"changedBy"`
	Comment   string    `json:"comment"`
}

// Record is one employee's tracked instance of a KPI for one period. The
// status field always equals the status of the newest history entry.
type Record struct {
	ID                  string         `json:"id"`
	EmployeeID          string         `json:"employeeId"`
	KpiID               string         `json:"kpiId"`
	Period              string         `json:"period"`
	Target              float64        `json:"target"`
	Actual              float64        `json:"actual"`
	Status              string         `json:"status"`
	SubmittedReport     string         `json:"submittedReport,omitempty"`
	ApprovalComment     string         `json:"approvalComment,omitempty"`
	StatusHistory       []HistoryEntry `json:"statusHistory,omitempty"`
	LastStatusChange    time.Time      `json:"lastStatusChange"`
	LastStatusChangedBy string         `json:"lastStatusChangedBy,omitempty"`
	StartDate           time.Time      `json:"startDate"`
	EndDate             time.Time      `json:"endDate"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// Actor is the capability object the engine's guards consume. It is passed
// in explicitly so tests can use fake actors.
type Actor struct {
	UserID     string
	EmployeeID string
	Role       string
}

func (a Actor) IsAdmin() bool {
	return a.Role == "admin"
}

// TransitionPayload carries the optional inputs of a transition.
type TransitionPayload struct {
	// Actual, when non-nil, replaces the record's actual value as part of
	// the start and submit actions.
	Actual  *float64
	Report  string
	Comment string
}

// Condition is one matchable criterion of a reward or penalty program.
// Values are kept as strings so the same shape serves numeric comparisons
// and substring matching.
type Condition struct {
	Metric      string `json:"metric"`
	Operator    string `json:"operator"`
	Value       string `json:"value"`
	SecondValue string `json:"secondValue,omitempty"`
	Unit        string `json:"unit,omitempty"`
}

// Criterion groups conditions that must all match for its amount to apply.
type Criterion struct {
	Conditions []Condition `json:"conditions"`
	Amount     float64     `json:"amount"`
}

// Program is a named bundle of independently satisfiable criteria; amounts
// of satisfied criteria are summed and capped by MaxReward.
type Program struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	MaxReward float64     `json:"maxReward"`
	Criteria  []Criterion `json:"criteria"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
}
