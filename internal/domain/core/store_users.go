package core

import (
	"context"

	"kpihub/internal/domain/auth"
)

// CreateEmployeeWithUser creates a login and its employee row in one
// transaction so a half-provisioned account can never be observed.
func (s *Store) CreateEmployeeWithUser(ctx context.Context, tenantID string, emp Employee, password string) (employeeID, userID string, err error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", "", err
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return "", "", err
	}
	defer tx.Rollback(ctx)

	var roleID string
	if err := tx.QueryRow(ctx, `
    SELECT id FROM roles WHERE tenant_id = $1 AND name = $2
  `, tenantID, auth.RoleEmployee).Scan(&roleID); err != nil {
		return "", "", err
	}

	if err := tx.QueryRow(ctx, `
    INSERT INTO users (tenant_id, email, password_hash, role_id, status)
    VALUES ($1,$2,$3,$4,'active')
    RETURNING id
  `, tenantID, emp.Email, hash, roleID).Scan(&userID); err != nil {
		return "", "", err
	}

	bankEnc, salaryEnc := encryptEmployeeSensitive(s.Crypto, emp)
	var bankPlain any = emp.BankAccount
	var salaryPlain any = emp.BaseSalary
	if s.Crypto != nil && s.Crypto.Configured() {
		bankPlain = nil
		salaryPlain = nil
	}
	if err := tx.QueryRow(ctx, `
    INSERT INTO employees (tenant_id, user_id, employee_number, first_name, last_name, email, phone,
      position, department_id, bank_account, bank_account_enc, base_salary, base_salary_enc,
      hire_date, status)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    RETURNING id
  `,
		tenantID, userID, nullIfEmpty(emp.EmployeeNumber), emp.FirstName, emp.LastName, emp.Email, emp.Phone,
		emp.Position, nullIfEmpty(emp.DepartmentID), bankPlain, bankEnc, salaryPlain, salaryEnc,
		emp.HireDate, emp.Status,
	).Scan(&employeeID); err != nil {
		return "", "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", "", err
	}
	return employeeID, userID, nil
}

func (s *Store) UserExists(ctx context.Context, tenantID, userID string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM users
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, userID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
