/**
 * @description
 * HTTP handlers for the billing service.
 */
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tributary-so/tributary/internal/app"
	"github.com/tributary-so/tributary/internal/billing"
	"github.com/tributary-so/tributary/internal/domain"
	"github.com/tributary-so/tributary/internal/store"
)

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service app.Service
	jobs    *app.Jobs
}

// NewHandler creates a new Handler with the given service and job runner.
func NewHandler(service app.Service, jobs *app.Jobs) *Handler {
	return &Handler{service: service, jobs: jobs}
}

func policyParams(r *http.Request) (string, uint32, error) {
	userPayment := chi.URLParam(r, "userPayment")
	if userPayment == "" {
		return "", 0, errors.New("user payment key is required")
	}
	policyID, err := strconv.ParseUint(chi.URLParam(r, "policyID"), 10, 32)
	if err != nil {
		return "", 0, errors.New("policy ID must be an unsigned integer")
	}
	return userPayment, uint32(policyID), nil
}

func (h *Handler) handleSettlePolicy(w http.ResponseWriter, r *http.Request) {
	authority, ok := GatewayFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userPayment, policyID, err := policyParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	policy, err := h.service.GetPolicy(r.Context(), userPayment, policyID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if policy.Gateway != authority {
		http.Error(w, "Gateway does not own this policy", http.StatusForbidden)
		return
	}

	record, err := h.service.SettlePolicy(r.Context(), userPayment, policyID, time.Now().UTC())
	if err != nil {
		log.Printf("Error settling policy %s/%d: %v", userPayment, policyID, err)
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, record)
}

func (h *Handler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserPayment string                  `json:"user_payment"`
		PolicyID    uint32                  `json:"policy_id"`
		Recipient   string                  `json:"recipient"`
		Gateway     string                  `json:"gateway"`
		PolicyType  domain.PolicyType       `json:"policy_type"`
		Frequency   domain.PaymentFrequency `json:"frequency"`
		Memo        string                  `json:"memo"`
		StartTime   *int64                  `json:"start_time,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	policy, err := h.service.CreatePolicy(r.Context(), app.CreatePolicyRequest{
		UserPaymentKey: body.UserPayment,
		PolicyID:       body.PolicyID,
		Recipient:      body.Recipient,
		Gateway:        body.Gateway,
		PolicyType:     body.PolicyType,
		Frequency:      body.Frequency,
		Memo:           body.Memo,
		StartTime:      body.StartTime,
	})
	if err != nil {
		log.Printf("Error creating policy %s/%d: %v", body.UserPayment, body.PolicyID, err)
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, policy)
}

func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	userPayment, policyID, err := policyParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	policy, err := h.service.GetPolicy(r.Context(), userPayment, policyID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, policy)
}

func (h *Handler) handlePausePolicy(w http.ResponseWriter, r *http.Request) {
	userPayment, policyID, err := policyParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	policy, err := h.service.PausePolicy(r.Context(), userPayment, policyID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, policy)
}

func (h *Handler) handleResumePolicy(w http.ResponseWriter, r *http.Request) {
	userPayment, policyID, err := policyParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	policy, err := h.service.ResumePolicy(r.Context(), userPayment, policyID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, policy)
}

func (h *Handler) handleRegisterUserPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner          string `json:"owner"`
		FundingAccount string `json:"funding_account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.service.RegisterUserPayment(r.Context(), body.Owner, body.FundingAccount)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleRegisterGateway(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Authority    string `json:"authority"`
		FeeRecipient string `json:"fee_recipient"`
		FeeBps       uint16 `json:"gateway_fee_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	gateway, err := h.service.RegisterGateway(r.Context(), body.Authority, body.FeeRecipient, body.FeeBps)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, gateway)
}

func (h *Handler) handleInitializeProgram(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Admin string `json:"admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	config, err := h.service.InitializeProgram(r.Context(), body.Admin)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, config)
}

func (h *Handler) handleSetPause(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	config, err := h.service.SetEmergencyPause(r.Context(), body.Paused)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, config)
}

func (h *Handler) handleRunDueSweep(w http.ResponseWriter, r *http.Request) {
	go h.jobs.ProcessDuePayments()
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "sweep started"})
}

// respondWithError maps engine and store errors onto HTTP status codes.
func respondWithError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, billing.ErrInvalidInterval),
		errors.Is(err, billing.ErrInvalidFrequency),
		errors.Is(err, billing.ErrInvalidMaxRenewals),
		errors.Is(err, billing.ErrInvalidPolicyType):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrPolicyNotFound),
		errors.Is(err, store.ErrUserPaymentNotFound),
		errors.Is(err, store.ErrGatewayNotFound),
		errors.Is(err, store.ErrConfigNotFound):
		status = http.StatusNotFound
	case errors.Is(err, billing.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, billing.ErrPaymentNotDue),
		errors.Is(err, billing.ErrPolicyNotActive),
		errors.Is(err, billing.ErrGatewayInactive),
		errors.Is(err, billing.ErrProgramPaused),
		errors.Is(err, billing.ErrMaxPoliciesReached),
		errors.Is(err, billing.ErrAlreadyActive),
		errors.Is(err, billing.ErrAlreadyPaused),
		errors.Is(err, store.ErrSettlementConflict):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
