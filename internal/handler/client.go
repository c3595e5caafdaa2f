// Package handler contains the HTTP handlers for the Kaiwa API.
//
// This file implements CRUD endpoints for a coach's clients.
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/kaiwahq/kaiwa/internal/auth"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/service"
)

// ClientHandler handles client (coachee) management HTTP requests.
type ClientHandler struct {
	clientService service.ClientService
	logger        *slog.Logger
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(clientService service.ClientService, logger *slog.Logger) *ClientHandler {
	return &ClientHandler{
		clientService: clientService,
		logger:        logger,
	}
}

// RegisterRoutes registers client routes on the provided mux.
// All routes require an authenticated, verified user.
func (h *ClientHandler) RegisterRoutes(mux *http.ServeMux, requireVerified func(http.Handler) http.Handler) {
	mux.Handle("GET /api/clients", requireVerified(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/clients", requireVerified(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/clients/{id}", requireVerified(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/clients/{id}", requireVerified(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/clients/{id}", requireVerified(http.HandlerFunc(h.Delete)))
}

type clientRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Timezone string `json:"timezone"`
	Goals    string `json:"goals"`
	Notes    string `json:"notes"`
}

// List returns the coach's clients, paginated. Pass all=1 to fetch the
// full list for dropdowns.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if r.URL.Query().Get("all") == "1" {
		clients, err := h.clientService.ListAll(r.Context(), user.ID)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		items := make([]ClientResponse, 0, len(clients))
		for i := range clients {
			items = append(items, newClientResponse(&clients[i]))
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"clients": items})
		return
	}

	limit, offset := pagination(r)
	result, err := h.clientService.List(r.Context(), domain.ListClientsParams{
		UserID: user.ID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	items := make([]ClientResponse, 0, len(result.Clients))
	for i := range result.Clients {
		items = append(items, newClientResponse(&result.Clients[i]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"clients": items,
		"meta":    ListMeta{Total: result.Total, Limit: result.Limit, Offset: result.Offset},
	})
}

// Create adds a new client for the coach.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError("client.create", "name", "Name is required"))
		return
	}

	client, err := h.clientService.Create(r.Context(), domain.CreateClientParams{
		UserID:   user.ID,
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
		Timezone: strings.TrimSpace(req.Timezone),
		Goals:    req.Goals,
		Notes:    req.Notes,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{"client": newClientResponse(client)})
}

// Get returns one client by ID.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	client, err := h.clientService.GetByID(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"client": newClientResponse(client)})
}

// Update replaces the client's editable fields.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError("client.update", "name", "Name is required"))
		return
	}

	err = h.clientService.Update(r.Context(), domain.UpdateClientParams{
		ID:       id,
		UserID:   user.ID,
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
		Timezone: strings.TrimSpace(req.Timezone),
		Goals:    req.Goals,
		Notes:    req.Notes,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	client, err := h.clientService.GetByID(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"client": newClientResponse(client)})
}

// Delete removes a client. Sessions keep their data but lose the
// client association.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.clientService.Delete(r.Context(), id, user.ID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
