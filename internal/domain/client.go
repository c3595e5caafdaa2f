// Package domain contains core business types and interfaces.
//
// This file defines the Client domain type and related types for
// managing a coach's clients (coachees).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Client Domain Type
// =============================================================================

// Client represents a person being coached by a user of the platform.
//
// This is the domain representation designed for use in business logic.
// Clients can be associated with multiple CoachingSessions.
type Client struct {
	ID        uuid.UUID // Unique identifier
	UserID    uuid.UUID // Coach who owns the client record
	Name      string    // Client full name
	Email     string    // Contact email
	Phone     string    // Contact phone
	Timezone  string    // IANA timezone name for scheduling (e.g., "Asia/Taipei")
	Goals     string    // Coaching goals agreed with the client
	Notes     string    // Private coach notes about this client
	CreatedAt time.Time // When client was created
	UpdatedAt time.Time // When client was last modified

	// Computed fields (not stored in database, populated by queries/services)
	SessionCount int // Number of coaching sessions recorded for this client
}

// DisplayName returns the client's name, falling back to email.
func (c *Client) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

// =============================================================================
// Client Service Parameters
// =============================================================================

// CreateClientParams contains validated parameters for creating a client.
type CreateClientParams struct {
	UserID   uuid.UUID // Coach who owns the client (from auth context)
	Name     string    // Required: Client full name
	Email    string    // Optional: Contact email
	Phone    string    // Optional: Contact phone
	Timezone string    // Optional: IANA timezone name
	Goals    string    // Optional: Coaching goals
	Notes    string    // Optional: Private notes
}

// UpdateClientParams contains validated parameters for updating a client.
type UpdateClientParams struct {
	ID       uuid.UUID // Client to update
	UserID   uuid.UUID // Coach (for authorization)
	Name     string    // Required: Client full name
	Email    string    // Optional
	Phone    string    // Optional
	Timezone string    // Optional
	Goals    string    // Optional
	Notes    string    // Optional
}

// ListClientsParams contains parameters for listing clients.
type ListClientsParams struct {
	UserID uuid.UUID // Filter by coach
	Limit  int32     // Max results to return
	Offset int32     // Number of results to skip
}

// =============================================================================
// List Result with Pagination
// =============================================================================

// ListClientsResult contains the result of a paginated client list query.
type ListClientsResult struct {
	Clients []Client // The client results
	Total   int64    // Total number of clients (for pagination)
	Limit   int32    // Number of results requested
	Offset  int32    // Number of results skipped
}

// HasMore returns true if there are more results available.
func (r *ListClientsResult) HasMore() bool {
	return int64(r.Offset+r.Limit) < r.Total
}

// HasPrevious returns true if there are previous results available.
func (r *ListClientsResult) HasPrevious() bool {
	return r.Offset > 0
}

// CurrentPage returns the current page number (1-indexed).
func (r *ListClientsResult) CurrentPage() int {
	if r.Limit == 0 {
		return 1
	}
	return int(r.Offset/r.Limit) + 1
}

// TotalPages returns the total number of pages.
func (r *ListClientsResult) TotalPages() int {
	if r.Limit == 0 {
		return 1
	}
	pages := r.Total / int64(r.Limit)
	if r.Total%int64(r.Limit) > 0 {
		pages++
	}
	return int(pages)
}
