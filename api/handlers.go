/*
handlers.go - HTTP handlers for the points service

ENDPOINTS:
  Public:
    GET  /api/people                    Leaderboard (balance desc, name asc)
    GET  /api/items                     Catalog (cost asc, name asc)
    GET  /api/people/{id}/transactions  Transaction history, newest first

  Authenticated self-service:
    GET  /api/me                        Resolve caller to a person (lazy create)
    POST /api/store/redeem              Redeem an item for yourself

  Admin:
    POST /api/people                    Create person
    POST /api/items                     Create item
    POST /api/points/grant              Grant (signed, non-zero amount)
    POST /api/points/redeem             Redeem on a person's behalf

ERROR HANDLING:
  Ledger error classes map to status + machine-readable code:
    401 not_authorized, 404 not_found, 400 invalid_input,
    400 insufficient_points, 409 conflict, 503 storage (retryable).
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hotwire/points-engine/ledger"
	"github.com/hotwire/points-engine/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Ledger   *ledger.Service
	Resolver *ledger.IdentityResolver
	Logger   *zap.Logger
}

// NewHandler wires the handler onto a store.
func NewHandler(store *sqlite.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Ledger:   ledger.NewService(store, logger),
		Resolver: ledger.NewIdentityResolver(store, logger),
		Logger:   logger,
	}
}

// =============================================================================
// LEADERBOARD AND CATALOG (public read projections)
// =============================================================================

// ListPeople returns the leaderboard.
func (h *Handler) ListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := h.Store.Leaderboard(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboard(people))
}

// ListItems returns the catalog.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]ItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toItemDTO(it)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTransactions returns a person's ledger history, newest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid person id", err)
		return
	}

	person, err := h.Store.GetPerson(r.Context(), ledger.PersonID(id))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if person == nil {
		writeError(w, http.StatusNotFound, "not_found", "Person not found", nil)
		return
	}

	txs, err := h.Store.TransactionsForPerson(r.Context(), person.ID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PERSON AND ITEM CREATION (admin)
// =============================================================================

// CreatePerson creates a person with a zero balance.
func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body", err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Name required", nil)
		return
	}

	person, err := h.Store.CreatePerson(r.Context(), name, "")
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonSummary(person))
}

// CreateItem creates a catalog item.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body", err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || req.Cost < 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "Name and non-negative cost required", nil)
		return
	}

	item, err := h.Store.CreateItem(r.Context(), name, req.Cost, strings.TrimSpace(req.Description))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(*item))
}

// =============================================================================
// LEDGER OPERATIONS
// =============================================================================

// Grant applies an admin grant and returns the updated balance.
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body", err)
		return
	}

	person, err := h.Ledger.Grant(r.Context(), caller.Actor,
		ledger.PersonID(req.PersonID), req.Amount, strings.TrimSpace(req.Note))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonSummary(person))
}

// Redeem processes a redemption on a person's behalf (admin path).
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body", err)
		return
	}

	person, err := h.Ledger.Redeem(r.Context(), caller.Actor,
		ledger.PersonID(req.PersonID), ledger.ItemID(req.ItemID))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonSummary(person))
}

// SelfRedeem redeems an item against the caller's own balance.
func (h *Handler) SelfRedeem(w http.ResponseWriter, r *http.Request) {
	person, ok := h.resolveCaller(w, r)
	if !ok {
		return
	}

	var req SelfRedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body", err)
		return
	}

	updated, err := h.Ledger.Redeem(r.Context(), ledger.Member(person.ID),
		person.ID, ledger.ItemID(req.ItemID))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonSummary(updated))
}

// Me resolves the caller to their person record, creating it on first
// authenticated access.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	person, ok := h.resolveCaller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toPersonSummary(person))
}

// =============================================================================
// HELPERS
// =============================================================================

// requireAdmin writes 401 and returns false unless the caller holds the
// admin capability.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !callerFrom(r.Context()).Actor.CanGrant() {
		writeError(w, http.StatusUnauthorized, "not_authorized", "Admin credentials required", nil)
		return false
	}
	return true
}

// resolveCaller maps the caller's external identity to a person record,
// creating one on first contact.
func (h *Handler) resolveCaller(w http.ResponseWriter, r *http.Request) (*ledger.Person, bool) {
	caller := callerFrom(r.Context())
	if caller.ExternalRef == "" {
		writeError(w, http.StatusUnauthorized, "not_authorized", "Sign in required", nil)
		return nil, false
	}

	person, err := h.Resolver.Resolve(r.Context(), caller.ExternalRef, caller.ExternalName)
	if err != nil {
		h.writeLedgerError(w, err)
		return nil, false
	}
	return person, true
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientPointsError

	switch {
	case errors.Is(err, ledger.ErrNotAuthorized):
		writeError(w, http.StatusUnauthorized, "not_authorized", "Unauthorized", nil)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &insufficient):
		writeError(w, http.StatusBadRequest, "insufficient_points", insufficient.Error(), nil)
	case errors.Is(err, ledger.ErrInsufficientPoints):
		writeError(w, http.StatusBadRequest, "insufficient_points", "Insufficient points", nil)
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidCost):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "storage", "Temporary storage failure, retry", err)
	default:
		h.Logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
