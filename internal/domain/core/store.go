package core

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cryptoutil "kpihub/internal/platform/crypto"
)

var ErrNotFound = errors.New("not found")

// Store reads and writes the directory tables. Bank account and salary are
// stored AES-GCM encrypted when a data key is configured; plaintext columns
// remain as a fallback for rows written before encryption was enabled.
type Store struct {
	DB     *pgxpool.Pool
	Crypto *cryptoutil.Service
}

func NewStore(db *pgxpool.Pool, crypto *cryptoutil.Service) *Store {
	return &Store{DB: db, Crypto: crypto}
}

func (s *Store) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM role_permissions rp
    JOIN permissions p ON rp.permission_id = p.id
    WHERE rp.role_id = $1 AND p.key = $2
  `, roleID, permission).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

const employeeColumns = `id,
  COALESCE(user_id::text, ''),
  COALESCE(employee_number, ''),
  first_name, last_name, email,
  COALESCE(phone, ''),
  COALESCE(position, ''),
  COALESCE(department_id::text, ''),
  COALESCE(bank_account, ''),
  bank_account_enc,
  base_salary,
  base_salary_enc,
  hire_date, status, created_at, updated_at`

func (s *Store) scanEmployee(row pgx.Row) (Employee, error) {
	var emp Employee
	var bankEnc, salaryEnc []byte
	var bankPlain string
	var salaryPlain *float64
	if err := row.Scan(
		&emp.ID, &emp.UserID, &emp.EmployeeNumber, &emp.FirstName, &emp.LastName, &emp.Email, &emp.Phone,
		&emp.Position, &emp.DepartmentID, &bankPlain, &bankEnc, &salaryPlain, &salaryEnc,
		&emp.HireDate, &emp.Status, &emp.CreatedAt, &emp.UpdatedAt,
	); err != nil {
		return Employee{}, err
	}
	emp.BankAccount = decryptStringFallback(s.Crypto, bankEnc, bankPlain)
	emp.BaseSalary = decryptFloatFallback(s.Crypto, salaryEnc, salaryPlain)
	return emp, nil
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, employeeID string) (*Employee, error) {
	emp, err := s.scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func (s *Store) GetEmployeeByUserID(ctx context.Context, tenantID, userID string) (*Employee, error) {
	emp, err := s.scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND user_id = $2
  `, tenantID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func (s *Store) EmployeeIDByUserID(ctx context.Context, tenantID, userID string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    SELECT id FROM employees WHERE tenant_id = $1 AND user_id = $2
  `, tenantID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (s *Store) ListEmployees(ctx context.Context, tenantID, departmentID string) ([]Employee, error) {
	query := `
    SELECT ` + employeeColumns + `
    FROM employees
    WHERE tenant_id = $1
  `
	args := []any{tenantID}
	if departmentID != "" {
		query += " AND department_id = $2"
		args = append(args, departmentID)
	}
	query += " ORDER BY last_name, first_name"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		emp, err := s.scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func (s *Store) CreateEmployee(ctx context.Context, tenantID string, emp Employee) (string, error) {
	bankEnc, salaryEnc := encryptEmployeeSensitive(s.Crypto, emp)
	var bankPlain any = emp.BankAccount
	var salaryPlain any = emp.BaseSalary
	if s.Crypto != nil && s.Crypto.Configured() {
		bankPlain = nil
		salaryPlain = nil
	}
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO employees (tenant_id, user_id, employee_number, first_name, last_name, email, phone,
      position, department_id, bank_account, bank_account_enc, base_salary, base_salary_enc,
      hire_date, status)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    RETURNING id
  `,
		tenantID, nullIfEmpty(emp.UserID), nullIfEmpty(emp.EmployeeNumber), emp.FirstName, emp.LastName,
		emp.Email, emp.Phone, emp.Position, nullIfEmpty(emp.DepartmentID),
		bankPlain, bankEnc, salaryPlain, salaryEnc, emp.HireDate, emp.Status,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, tenantID, employeeID string, emp Employee) error {
	bankEnc, salaryEnc := encryptEmployeeSensitive(s.Crypto, emp)
	var bankPlain any = emp.BankAccount
	var salaryPlain any = emp.BaseSalary
	if s.Crypto != nil && s.Crypto.Configured() {
		bankPlain = nil
		salaryPlain = nil
	}
	cmd, err := s.DB.Exec(ctx, `
    UPDATE employees
    SET employee_number = $1,
        first_name = $2,
        last_name = $3,
        email = $4,
        phone = $5,
        position = $6,
        department_id = $7,
        bank_account = $8,
        bank_account_enc = $9,
        base_salary = $10,
        base_salary_enc = $11,
        hire_date = $12,
        status = $13,
        updated_at = now()
    WHERE tenant_id = $14 AND id = $15
  `,
		emp.EmployeeNumber, emp.FirstName, emp.LastName, emp.Email, emp.Phone, emp.Position,
		nullIfEmpty(emp.DepartmentID), bankPlain, bankEnc, salaryPlain, salaryEnc,
		emp.HireDate, emp.Status, tenantID, employeeID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListDepartments(ctx context.Context, tenantID string) ([]Department, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, COALESCE(manager_id::text,''), created_at
    FROM departments
    WHERE tenant_id = $1
    ORDER BY name
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.ManagerID, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CreateDepartment(ctx context.Context, tenantID string, dept Department) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO departments (tenant_id, name, manager_id)
    VALUES ($1,$2,$3)
    RETURNING id
  `, tenantID, dept.Name, nullIfEmpty(dept.ManagerID)).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func encryptEmployeeSensitive(crypto *cryptoutil.Service, emp Employee) ([]byte, []byte) {
	if crypto == nil || !crypto.Configured() {
		return nil, nil
	}
	bankEnc, _ := crypto.EncryptString(emp.BankAccount)
	var salaryEnc []byte
	if emp.BaseSalary != nil {
		salaryEnc, _ = crypto.EncryptString(strconv.FormatFloat(*emp.BaseSalary, 'f', 2, 64))
	}
	return bankEnc, salaryEnc
}

func decryptStringFallback(crypto *cryptoutil.Service, encrypted []byte, plain string) string {
	if crypto == nil || !crypto.Configured() || len(encrypted) == 0 {
		return plain
	}
	decrypted, err := crypto.DecryptString(encrypted)
	if err != nil {
		return plain
	}
	return decrypted
}

func decryptFloatFallback(crypto *cryptoutil.Service, encrypted []byte, plain *float64) *float64 {
	if crypto == nil || !crypto.Configured() || len(encrypted) == 0 {
		return plain
	}
	value, err := crypto.DecryptString(encrypted)
	if err != nil {
		return plain
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return plain
	}
	return &parsed
}
