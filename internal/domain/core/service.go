package core

import "context"

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	return s.store.HasPermission(ctx, roleID, permission)
}

func (s *Service) UserExists(ctx context.Context, tenantID, userID string) (bool, error) {
	return s.store.UserExists(ctx, tenantID, userID)
}

func (s *Service) GetEmployee(ctx context.Context, tenantID, employeeID string) (*Employee, error) {
	return s.store.GetEmployee(ctx, tenantID, employeeID)
}

func (s *Service) GetEmployeeByUserID(ctx context.Context, tenantID, userID string) (*Employee, error) {
	return s.store.GetEmployeeByUserID(ctx, tenantID, userID)
}

func (s *Service) EmployeeIDByUserID(ctx context.Context, tenantID, userID string) (string, error) {
	return s.store.EmployeeIDByUserID(ctx, tenantID, userID)
}

func (s *Service) ListEmployees(ctx context.Context, tenantID, departmentID string) ([]Employee, error) {
	return s.store.ListEmployees(ctx, tenantID, departmentID)
}

func (s *Service) CreateEmployee(ctx context.Context, tenantID string, emp Employee) (string, error) {
	return s.store.CreateEmployee(ctx, tenantID, emp)
}

func (s *Service) CreateEmployeeWithUser(ctx context.Context, tenantID string, emp Employee, password string) (string, string, error) {
	return s.store.CreateEmployeeWithUser(ctx, tenantID, emp, password)
}

func (s *Service) UpdateEmployee(ctx context.Context, tenantID, employeeID string, emp Employee) error {
	return s.store.UpdateEmployee(ctx, tenantID, employeeID, emp)
}

func (s *Service) ListDepartments(ctx context.Context, tenantID string) ([]Department, error) {
	return s.store.ListDepartments(ctx, tenantID)
}

func (s *Service) CreateDepartment(ctx context.Context, tenantID string, dept Department) (string, error) {
	return s.store.CreateDepartment(ctx, tenantID, dept)
}
