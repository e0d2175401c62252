package domain

type Customer struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Phone  string `db:"phone" json:"phone,omitempty"`
	Email  string `db:"email" json:"email,omitempty"`
	State  string `db:"state" json:"state,omitempty"`
	Active bool   `db:"active" json:"active"`
}
