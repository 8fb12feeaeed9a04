package models

import "time"

type Customer struct {
	CustomerID  string    `json:"customer_id"`
	Phone       string    `json:"phone_number"`
	Name        string    `json:"name,omitempty"`
	NoShowCount int       `json:"no_show_count"`
	Blacklisted bool      `json:"blacklisted"`
	ListedSince time.Time `json:"listed_since"`
	CreatedAt   time.Time `json:"created_at"`
}

type Employee struct {
	EmployeeID   string    `json:"employee_id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)
