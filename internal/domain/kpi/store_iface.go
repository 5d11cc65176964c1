package kpi

import (
	"context"
	"time"
)

// ListFilter narrows record listings. Zero values mean "no filter".
type ListFilter struct {
	EmployeeID string
	KpiID      string
	Period     string
	Status     string
	Limit      int
	Offset     int
}

type RecordListResult struct {
	Records []Record
	Total   int
}

type StoreAPI interface {
	CreateDefinition(ctx context.Context, tenantID string, def Definition) (string, error)
	UpdateDefinition(ctx context.Context, tenantID string, def Definition) error
	DeactivateDefinition(ctx context.Context, tenantID, defID string) error
	DeleteDefinition(ctx context.Context, tenantID, defID string) error
	GetDefinition(ctx context.Context, tenantID, defID string) (Definition, error)
	ListDefinitions(ctx context.Context, tenantID, departmentID string, activeOnly bool) ([]Definition, error)

	CreateRecord(ctx context.Context, tenantID string, rec Record) (string, error)
	GetRecord(ctx context.Context, tenantID, recordID string) (Record, error)
	ListRecords(ctx context.Context, tenantID string, filter ListFilter) (RecordListResult, error)
	ListHistory(ctx context.Context, tenantID, recordID string) ([]HistoryEntry, error)

	// SaveTransition persists an applied transition with a compare-and-swap
	// on the record's previous status; ErrConflict means the record moved
	// underneath the caller.
	SaveTransition(ctx context.Context, tenantID string, rec Record, expectedStatus string) error
	UpdateActual(ctx context.Context, tenantID, recordID, expectedStatus string, actual float64, report string, now time.Time) error

	CreateProgram(ctx context.Context, tenantID string, program Program) (string, error)
	GetProgram(ctx context.Context, tenantID, programID string) (Program, error)
	ListPrograms(ctx context.Context, tenantID string, activeOnly bool) ([]Program, error)
	SetProgramActive(ctx context.Context, tenantID, programID string, active bool) error

	OverdueRecords(ctx context.Context, tenantID string, now time.Time) ([]Record, error)
	MarkOverdueNotified(ctx context.Context, tenantID, recordID string, now time.Time) error

	EmployeeUserID(ctx context.Context, tenantID, employeeID string) (string, error)
	AdminUserIDs(ctx context.Context, tenantID string) ([]string, error)
}
