/**
 * @description
 * HTTP handlers for the membership service. Every response uses the same envelope:
 * {"success", "message", "data"?, "errors"?}.
 */
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gart/membership-service/internal/app"
	"github.com/gart/membership-service/internal/domain"
	"github.com/gart/membership-service/internal/store"
	"github.com/gart/membership-service/pkg/filestore"
)

const maxApplyRequestBytes = 10 << 20

// AttachmentOpener reads stored application documents.
type AttachmentOpener interface {
	Open(path string) (*os.File, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service *app.Service
	files   AttachmentOpener
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service, files AttachmentOpener) *Handler {
	return &Handler{service: service, files: files}
}

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

type quoteRequest struct {
	MembershipType string         `json:"membershipType"`
	Data           map[string]any `json:"data"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type quoteResponse struct {
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	EndDate        time.Time       `json:"endDate"`
	QRPayload      string          `json:"qrPayload"`
	MembershipType domain.Category `json:"membershipType"`
	Region         domain.Region   `json:"region"`
	RemainingYears int             `json:"remainingYears,omitempty"`
	StartDate      time.Time       `json:"startDate"`
}

func newQuoteResponse(q app.Quote) quoteResponse {
	return quoteResponse{
		Amount:         q.Amount,
		Currency:       q.Currency,
		EndDate:        q.EndDate,
		QRPayload:      q.QRPayload,
		MembershipType: q.MembershipType,
		Region:         q.Region,
		RemainingYears: q.RemainingYears,
		StartDate:      q.StartDate,
	}
}

// applyResponse carries the payment link again, now tagged with the transaction id.
type applyResponse struct {
	ApplicationID string    `json:"applicationId"`
	PaymentID     string    `json:"paymentId"`
	EndDate       time.Time `json:"endDate"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	QRPayload     string    `json:"qrPayload"`
}

type approveResponse struct {
	MembershipID string    `json:"membershipId"`
	EndDate      time.Time `json:"endDate"`
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req quoteRequest
	if err := decodeJSON(r.Body, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	quote, err := h.service.Quote(r.Context(), identity.UserID, req.MembershipType, req.Data)
	if err != nil {
		h.writeServiceError(w, err, "quote")
		return
	}
	respondSuccess(w, http.StatusOK, "Quote calculated", newQuoteResponse(*quote))
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxApplyRequestBytes)
	if err := r.ParseMultipartForm(maxApplyRequestBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Uploads must not exceed 10 MB in total")
			return
		}
		writeError(w, http.StatusBadRequest, "Expected a multipart/form-data body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := app.ApplyInput{
		UserID:         identity.UserID,
		MembershipType: r.FormValue("membershipType"),
	}
	var problems []string
	if raw := strings.TrimSpace(r.FormValue("data")); raw == "" {
		problems = append(problems, "data is required")
	} else if err := decodeJSON(strings.NewReader(raw), &in.Data, false); err != nil {
		problems = append(problems, "data must be a JSON object")
	}
	if raw := strings.TrimSpace(r.FormValue("payment")); raw == "" {
		problems = append(problems, "payment is required")
	} else if err := decodeJSON(strings.NewReader(raw), &in.Payment, false); err != nil {
		problems = append(problems, "payment must be a JSON object")
	}
	if len(problems) > 0 {
		writeValidationError(w, problems)
		return
	}

	uploads, closeAll, err := collectUploads(r.MultipartForm)
	defer closeAll()
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to open upload\" user_id=%s err=%v", identity.UserID, err)
		writeError(w, http.StatusBadRequest, "Could not read uploaded files")
		return
	}
	in.Uploads = uploads

	result, err := h.service.Apply(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err, "apply")
		return
	}
	respondSuccess(w, http.StatusCreated, "Application submitted", applyResponse{
		ApplicationID: result.Application.ID,
		PaymentID:     result.Payment.ID,
		EndDate:       result.Quote.EndDate,
		Amount:        result.Quote.Amount,
		Currency:      result.Quote.Currency,
		QRPayload:     result.Quote.QRPayload,
	})
}

func collectUploads(form *multipart.Form) ([]app.Upload, func(), error) {
	var (
		uploads []app.Upload
		opened  []multipart.File
	)
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	if form == nil {
		return nil, closeAll, nil
	}
	for field, headers := range form.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				return nil, closeAll, err
			}
			opened = append(opened, f)
			uploads = append(uploads, app.Upload{Field: field, Filename: header.Filename, Content: f})
		}
	}
	return uploads, closeAll, nil
}

func (h *Handler) handleLatestApplication(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	detail, err := h.service.LatestApplication(r.Context(), identity.UserID)
	if err != nil {
		h.writeServiceError(w, err, "latest application")
		return
	}
	if detail == nil {
		respondSuccess(w, http.StatusOK, "No application found", nil)
		return
	}
	respondSuccess(w, http.StatusOK, "Latest application", detail)
}

func (h *Handler) handleCurrentMembership(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	membership, err := h.service.CurrentMembership(r.Context(), identity.UserID)
	if err != nil {
		h.writeServiceError(w, err, "current membership")
		return
	}
	if membership == nil {
		respondSuccess(w, http.StatusOK, "No active membership", nil)
		return
	}
	respondSuccess(w, http.StatusOK, "Active membership", membership)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	application, err := h.service.Withdraw(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "withdraw")
		return
	}
	respondSuccess(w, http.StatusOK, "Application withdrawn", application)
}

func (h *Handler) handleListApplications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.ApplicationFilter{
		Status:         strings.TrimSpace(query.Get("status")),
		MembershipType: domain.Category(strings.TrimSpace(query.Get("membershipType"))),
	}

	var problems []string
	var err error
	if filter.Page, err = parseOptionalInt(query.Get("page")); err != nil {
		problems = append(problems, "page must be a positive integer")
	}
	if filter.PageSize, err = parseOptionalInt(query.Get("pageSize")); err != nil {
		problems = append(problems, "pageSize must be a positive integer")
	}
	if len(problems) > 0 {
		writeValidationError(w, problems)
		return
	}

	page, err := h.service.ListApplications(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err, "list applications")
		return
	}
	respondSuccess(w, http.StatusOK, "Applications", page)
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "get application")
		return
	}
	respondSuccess(w, http.StatusOK, "Application", detail)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	result, err := h.service.Approve(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "approve")
		return
	}
	message := "Application approved"
	if result.AlreadyApproved {
		message = "Application was already approved"
	}
	respondSuccess(w, http.StatusOK, message, approveResponse{
		MembershipID: result.Membership.ID,
		EndDate:      result.Membership.EndDate,
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req reasonRequest
	if err := decodeJSON(r.Body, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.service.Reject(r.Context(), identity.UserID, chi.URLParam(r, "id"), req.Reason); err != nil {
		h.writeServiceError(w, err, "reject")
		return
	}
	respondSuccess(w, http.StatusOK, "Application rejected", struct{}{})
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req noteRequest
	if err := decodeJSON(r.Body, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	application, err := h.service.MarkUnderReview(r.Context(), identity.UserID, chi.URLParam(r, "id"), req.Note)
	if err != nil {
		h.writeServiceError(w, err, "review")
		return
	}
	respondSuccess(w, http.StatusOK, "Application under review", application)
}

func (h *Handler) handleRequestChanges(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req noteRequest
	if err := decodeJSON(r.Body, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	application, err := h.service.RequestChanges(r.Context(), identity.UserID, chi.URLParam(r, "id"), req.Note)
	if err != nil {
		h.writeServiceError(w, err, "request changes")
		return
	}
	respondSuccess(w, http.StatusOK, "Changes requested", application)
}

func (h *Handler) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		writeError(w, http.StatusNotFound, "Attachment not found.")
		return
	}
	stored, err := h.service.AttachmentPath(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "field"))
	if err != nil {
		h.writeServiceError(w, err, "download attachment")
		return
	}
	f, err := h.files.Open(stored)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Attachment not found.")
			return
		}
		h.writeServiceError(w, err, "download attachment")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeServiceError(w, err, "download attachment")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(stored)))
	http.ServeContent(w, r, path.Base(stored), info.ModTime(), f)
}

func (h *Handler) handleListMembershipTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListMembershipTypes(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "list membership types")
		return
	}
	respondSuccess(w, http.StatusOK, "Membership types", types)
}

func (h *Handler) handleUpdateMembershipType(w http.ResponseWriter, r *http.Request) {
	var patch domain.MembershipTypePatch
	if err := decodeJSON(r.Body, &patch, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.service.UpdateMembershipType(r.Context(), chi.URLParam(r, "code"), patch)
	if err != nil {
		h.writeServiceError(w, err, "update membership type")
		return
	}
	respondSuccess(w, http.StatusOK, "Membership type updated", updated)
}

// mapServiceError translates workflow and store errors into a status and client message.
func mapServiceError(err error) (int, string, []string) {
	var validation *app.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, "Validation failed", validation.Problems
	}

	switch {
	case errors.Is(err, app.ErrActiveMembershipExists),
		errors.Is(err, app.ErrPendingApplicationExists),
		errors.Is(err, app.ErrDuplicateTransactionID):
		return http.StatusConflict, err.Error(), nil
	case errors.Is(err, app.ErrInvalidTransition):
		return http.StatusConflict, "Application cannot move to the requested status.", nil
	case errors.Is(err, app.ErrMembershipTypeNotFound):
		return http.StatusNotFound, "Membership type not found.", nil
	case errors.Is(err, store.ErrApplicationNotFound):
		return http.StatusNotFound, "Application not found.", nil
	case errors.Is(err, store.ErrPaymentNotFound):
		return http.StatusNotFound, "Payment not found.", nil
	case errors.Is(err, store.ErrMembershipNotFound):
		return http.StatusNotFound, "Membership not found.", nil
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "User not found.", nil
	case errors.Is(err, app.ErrAttachmentNotFound):
		return http.StatusNotFound, "Attachment not found.", nil
	case errors.Is(err, app.ErrForbidden):
		return http.StatusForbidden, "You are not allowed to act on this application.", nil
	case errors.Is(err, app.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests. Please try again shortly.", nil
	case errors.Is(err, filestore.ErrUnsupportedFileType):
		return http.StatusBadRequest, "Uploads must be PDF, JPEG, PNG or WebP files.", nil
	}

	return http.StatusInternalServerError, "Could not process membership request.", nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, operation string) {
	status, message, problems := mapServiceError(err)
	if status == http.StatusInternalServerError {
		log.Printf("level=error component=api msg=\"request failed\" operation=%q err=%v", operation, err)
	}

	var limited *app.RateLimitError
	if errors.As(err, &limited) && limited.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
	}
	respondWithJSON(w, status, envelope{Success: false, Message: message, Errors: problems})
}

// decodeJSON decodes a single JSON value, keeping numbers as json.Number. An empty body
// is accepted when allowEmpty is set.
func decodeJSON(body io.Reader, dst interface{}, allowEmpty bool) error {
	decoder := json.NewDecoder(body)
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func parseOptionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid positive integer %q", raw)
	}
	return n, nil
}

func respondSuccess(w http.ResponseWriter, code int, message string, data interface{}) {
	respondWithJSON(w, code, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, envelope{Success: false, Message: message})
}

func writeValidationError(w http.ResponseWriter, problems []string) {
	respondWithJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Validation failed", Errors: problems})
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
