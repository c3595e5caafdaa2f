package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const clientColumns = `id, user_id, name, email, phone, timezone, goals, notes, created_at, updated_at`

func scanClient(row interface{ Scan(...interface{}) error }) (Client, error) {
	var c Client
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Timezone,
		&c.Goals,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// CreateClientParams holds the inputs for CreateClient.
type CreateClientParams struct {
	UserID   uuid.UUID
	Name     string
	Email    sql.NullString
	Phone    sql.NullString
	Timezone sql.NullString
	Goals    sql.NullString
	Notes    sql.NullString
}

const createClient = `
INSERT INTO clients (user_id, name, email, phone, timezone, goals, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + clientColumns

func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) (Client, error) {
	row := q.db.QueryRowContext(ctx, createClient,
		arg.UserID, arg.Name, arg.Email, arg.Phone, arg.Timezone, arg.Goals, arg.Notes)
	return scanClient(row)
}

const getClientByIDAndUserID = `
SELECT ` + clientColumns + ` FROM clients WHERE id = $1 AND user_id = $2`

func (q *Queries) GetClientByIDAndUserID(ctx context.Context, id, userID uuid.UUID) (Client, error) {
	return scanClient(q.db.QueryRowContext(ctx, getClientByIDAndUserID, id, userID))
}

// ClientWithSessionCount is a client row joined with its session count.
type ClientWithSessionCount struct {
	Client
	SessionCount int64
}

const getClientWithSessionCount = `
SELECT c.id, c.user_id, c.name, c.email, c.phone, c.timezone, c.goals, c.notes,
       c.created_at, c.updated_at,
       count(s.id) AS session_count
FROM clients c
LEFT JOIN coaching_sessions s ON s.client_id = c.id
WHERE c.id = $1 AND c.user_id = $2
GROUP BY c.id`

func (q *Queries) GetClientWithSessionCount(ctx context.Context, id, userID uuid.UUID) (ClientWithSessionCount, error) {
	var c ClientWithSessionCount
	err := q.db.QueryRowContext(ctx, getClientWithSessionCount, id, userID).Scan(
		&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Timezone, &c.Goals, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt, &c.SessionCount)
	return c, err
}

// ListClientsWithSessionCountParams holds the inputs for ListClientsWithSessionCount.
type ListClientsWithSessionCountParams struct {
	UserID uuid.UUID
	Limit  int32
	Offset int32
}

const listClientsWithSessionCount = `
SELECT c.id, c.user_id, c.name, c.email, c.phone, c.timezone, c.goals, c.notes,
       c.created_at, c.updated_at,
       count(s.id) AS session_count
FROM clients c
LEFT JOIN coaching_sessions s ON s.client_id = c.id
WHERE c.user_id = $1
GROUP BY c.id
ORDER BY c.name
LIMIT $2 OFFSET $3`

func (q *Queries) ListClientsWithSessionCount(ctx context.Context, arg ListClientsWithSessionCountParams) ([]ClientWithSessionCount, error) {
	rows, err := q.db.QueryContext(ctx, listClientsWithSessionCount, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClientWithSessionCount
	for rows.Next() {
		var c ClientWithSessionCount
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Timezone, &c.Goals, &c.Notes,
			&c.CreatedAt, &c.UpdatedAt, &c.SessionCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const listAllClientsByUserID = `
SELECT ` + clientColumns + ` FROM clients WHERE user_id = $1 ORDER BY name`

func (q *Queries) ListAllClientsByUserID(ctx context.Context, userID uuid.UUID) ([]Client, error) {
	rows, err := q.db.QueryContext(ctx, listAllClientsByUserID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const countClientsByUserID = `SELECT count(*) FROM clients WHERE user_id = $1`

func (q *Queries) CountClientsByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countClientsByUserID, userID).Scan(&n)
	return n, err
}

// UpdateClientParams holds the inputs for UpdateClient.
type UpdateClientParams struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Name     string
	Email    sql.NullString
	Phone    sql.NullString
	Timezone sql.NullString
	Goals    sql.NullString
	Notes    sql.NullString
}

const updateClient = `
UPDATE clients
SET name = $3, email = $4, phone = $5, timezone = $6, goals = $7, notes = $8,
    updated_at = now()
WHERE id = $1 AND user_id = $2`

func (q *Queries) UpdateClient(ctx context.Context, arg UpdateClientParams) error {
	_, err := q.db.ExecContext(ctx, updateClient,
		arg.ID, arg.UserID, arg.Name, arg.Email, arg.Phone, arg.Timezone, arg.Goals, arg.Notes)
	return err
}

const deleteClient = `DELETE FROM clients WHERE id = $1 AND user_id = $2`

func (q *Queries) DeleteClient(ctx context.Context, id, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteClient, id, userID)
	return err
}

const countSessionsByClientID = `
SELECT count(*) FROM coaching_sessions WHERE client_id = $1`

func (q *Queries) CountSessionsByClientID(ctx context.Context, clientID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countSessionsByClientID, clientID).Scan(&n)
	return n, err
}
