// Package service contains the business logic layer.
//
// This file implements the client service for managing a coach's
// clients (coachees).
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ClientService defines the interface for client-related operations.
//
// This interface enables:
// - Mocking in unit tests
// - Clear contract definition for handlers
type ClientService interface {
	// Create creates a new client.
	// Returns domain.EINVALID for validation errors.
	Create(ctx context.Context, params domain.CreateClientParams) (*domain.Client, error)

	// GetByID retrieves a client by ID and user ID (for authorization).
	// Returns domain.ENOTFOUND if client does not exist or doesn't belong to user.
	GetByID(ctx context.Context, id, userID uuid.UUID) (*domain.Client, error)

	// List retrieves a paginated list of clients for a user.
	// Returns empty result if user has no clients.
	List(ctx context.Context, params domain.ListClientsParams) (*domain.ListClientsResult, error)

	// ListAll retrieves all clients for a user (for dropdowns).
	// Returns empty slice if user has no clients.
	ListAll(ctx context.Context, userID uuid.UUID) ([]domain.Client, error)

	// Update updates an existing client.
	// Returns domain.ENOTFOUND if client does not exist or doesn't belong to user.
	// Returns domain.EINVALID for validation errors.
	Update(ctx context.Context, params domain.UpdateClientParams) error

	// Delete deletes a client by ID.
	// Returns domain.ENOTFOUND if client does not exist or doesn't belong to user.
	// Returns domain.EINVALID if the client has recorded sessions.
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// =============================================================================
// Implementation
// =============================================================================

// clientService implements the ClientService interface.
type clientService struct {
	queries *repository.Queries
	logger  *slog.Logger
}

// NewClientService creates a new ClientService.
func NewClientService(queries *repository.Queries, logger *slog.Logger) ClientService {
	return &clientService{
		queries: queries,
		logger:  logger,
	}
}

// =============================================================================
// Create
// =============================================================================

// Create creates a new client.
func (s *clientService) Create(ctx context.Context, params domain.CreateClientParams) (*domain.Client, error) {
	const op = "client.create"

	if err := validateClientFields(params.Name, params.Timezone); err != nil {
		return nil, err
	}

	row, err := s.queries.CreateClient(ctx, repository.CreateClientParams{
		UserID:   params.UserID,
		Name:     strings.TrimSpace(params.Name),
		Email:    domain.ToNullString(strings.TrimSpace(params.Email)),
		Phone:    domain.ToNullString(strings.TrimSpace(params.Phone)),
		Timezone: domain.ToNullString(params.Timezone),
		Goals:    domain.ToNullString(params.Goals),
		Notes:    domain.ToNullString(params.Notes),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create client")
	}

	client := rowToClient(row)

	s.logger.Info("client created",
		"client_id", client.ID,
		"user_id", params.UserID,
		"name", client.Name,
	)

	return client, nil
}

// =============================================================================
// GetByID
// =============================================================================

// GetByID retrieves a client by ID, including its session count.
func (s *clientService) GetByID(ctx context.Context, id, userID uuid.UUID) (*domain.Client, error) {
	const op = "client.get"

	row, err := s.queries.GetClientWithSessionCount(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "client", id.String())
		}
		return nil, domain.Internal(err, op, "failed to get client")
	}

	client := rowToClient(row.Client)
	client.SessionCount = int(row.SessionCount)
	return client, nil
}

// =============================================================================
// List
// =============================================================================

// List retrieves a paginated list of clients.
func (s *clientService) List(ctx context.Context, params domain.ListClientsParams) (*domain.ListClientsResult, error) {
	const op = "client.list"

	if params.Limit <= 0 {
		params.Limit = 20
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	total, err := s.queries.CountClientsByUserID(ctx, params.UserID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count clients")
	}

	rows, err := s.queries.ListClientsWithSessionCount(ctx, repository.ListClientsWithSessionCountParams{
		UserID: params.UserID,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list clients")
	}

	clients := make([]domain.Client, 0, len(rows))
	for _, row := range rows {
		c := rowToClient(row.Client)
		c.SessionCount = int(row.SessionCount)
		clients = append(clients, *c)
	}

	return &domain.ListClientsResult{
		Clients: clients,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
	}, nil
}

// ListAll retrieves all clients for a user (for dropdowns).
func (s *clientService) ListAll(ctx context.Context, userID uuid.UUID) ([]domain.Client, error) {
	const op = "client.list_all"

	rows, err := s.queries.ListAllClientsByUserID(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list clients")
	}

	clients := make([]domain.Client, 0, len(rows))
	for _, row := range rows {
		clients = append(clients, *rowToClient(row))
	}

	return clients, nil
}

// =============================================================================
// Update
// =============================================================================

// Update updates an existing client.
func (s *clientService) Update(ctx context.Context, params domain.UpdateClientParams) error {
	const op = "client.update"

	if err := validateClientFields(params.Name, params.Timezone); err != nil {
		return err
	}

	// Verify client exists and belongs to user
	_, err := s.queries.GetClientByIDAndUserID(ctx, params.ID, params.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "client", params.ID.String())
		}
		return domain.Internal(err, op, "failed to get client")
	}

	err = s.queries.UpdateClient(ctx, repository.UpdateClientParams{
		ID:       params.ID,
		UserID:   params.UserID,
		Name:     strings.TrimSpace(params.Name),
		Email:    domain.ToNullString(strings.TrimSpace(params.Email)),
		Phone:    domain.ToNullString(strings.TrimSpace(params.Phone)),
		Timezone: domain.ToNullString(params.Timezone),
		Goals:    domain.ToNullString(params.Goals),
		Notes:    domain.ToNullString(params.Notes),
	})
	if err != nil {
		return domain.Internal(err, op, "failed to update client")
	}

	s.logger.Info("client updated",
		"client_id", params.ID,
		"user_id", params.UserID,
	)

	return nil
}

// =============================================================================
// Delete
// =============================================================================

// Delete deletes a client. Clients with recorded sessions cannot be deleted;
// the sessions hold the coaching history and must be removed first.
func (s *clientService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	const op = "client.delete"

	_, err := s.queries.GetClientByIDAndUserID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "client", id.String())
		}
		return domain.Internal(err, op, "failed to get client")
	}

	sessionCount, err := s.queries.CountSessionsByClientID(ctx, id)
	if err != nil {
		return domain.Internal(err, op, "failed to count sessions")
	}
	if sessionCount > 0 {
		return domain.Invalid(op, "cannot delete a client with recorded sessions")
	}

	err = s.queries.DeleteClient(ctx, id, userID)
	if err != nil {
		return domain.Internal(err, op, "failed to delete client")
	}

	s.logger.Info("client deleted",
		"client_id", id,
		"user_id", userID,
	)

	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// validateClientFields checks the shared create/update invariants.
func validateClientFields(name, timezone string) error {
	const op = "client.validate"

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Invalid(op, "name is required")
	}
	if len(name) > 255 {
		return domain.Invalid(op, "name must be 255 characters or less")
	}

	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return domain.Invalid(op, "unknown timezone: "+timezone)
		}
	}

	return nil
}

// rowToClient converts a repository client row to a domain Client.
func rowToClient(row repository.Client) *domain.Client {
	return &domain.Client{
		ID:        row.ID,
		UserID:    row.UserID,
		Name:      row.Name,
		Email:     domain.NullStringValue(row.Email),
		Phone:     domain.NullStringValue(row.Phone),
		Timezone:  domain.NullStringValue(row.Timezone),
		Goals:     domain.NullStringValue(row.Goals),
		Notes:     domain.NullStringValue(row.Notes),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// Ensure clientService implements ClientService
var _ ClientService = (*clientService)(nil)
