package postgres

import (
	"context"
	"errors"
	"time"

	"tablequeue/queue-service/internal/models"
	"tablequeue/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var _ store.EmployeeStore = (*Store)(nil)

func (s *Store) GetEmployeeByUsername(ctx context.Context, username string) (models.Employee, error) {
	var employee models.Employee
	row := s.pool.QueryRow(ctx, `
		SELECT employee_id, username, name, role, password_hash, active, created_at
		FROM employees
		WHERE username = $1
	`, username)
	if err := row.Scan(&employee.EmployeeID, &employee.Username, &employee.Name, &employee.Role, &employee.PasswordHash, &employee.Active, &employee.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Employee{}, store.ErrEmployeeNotFound
		}
		return models.Employee{}, translateError(err)
	}
	return employee, nil
}

// EnsureEmployee inserts the employee unless the username already exists.
// It reports whether a row was created.
func (s *Store) EnsureEmployee(ctx context.Context, employee models.Employee) (bool, error) {
	if employee.EmployeeID == "" {
		employee.EmployeeID = uuid.NewString()
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO employees (employee_id, username, name, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO NOTHING
	`, employee.EmployeeID, employee.Username, employee.Name, employee.PasswordHash, employee.Role, employee.Active, employee.CreatedAt)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() == 1, nil
}
