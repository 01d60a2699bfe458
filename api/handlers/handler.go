package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/certificate-trust-backend/api"
	"github.com/ruteri/certificate-trust-backend/coordinator"
	"github.com/ruteri/certificate-trust-backend/interfaces"
	"github.com/ruteri/certificate-trust-backend/ratelimit"
	"github.com/ruteri/certificate-trust-backend/verification"
)

// IssuanceCoordinator prepares and confirms certificate issuance.
type IssuanceCoordinator interface {
	Prepare(ctx context.Context, req coordinator.PrepareIssuanceRequest) (*interfaces.IssuanceDescriptor, error)
	Confirm(ctx context.Context, req coordinator.ConfirmIssuanceRequest) (string, error)
}

// RevocationCoordinator prepares and confirms certificate revocation.
type RevocationCoordinator interface {
	Prepare(ctx context.Context, req coordinator.PrepareRevocationRequest) (*interfaces.RevocationDescriptor, error)
	Confirm(ctx context.Context, req coordinator.ConfirmRevocationRequest) (string, error)
}

// DeploymentCoordinator prepares and confirms contract deployment.
type DeploymentCoordinator interface {
	Prepare(ctx context.Context, req coordinator.PrepareDeploymentRequest) (*interfaces.DeploymentDescriptor, error)
	Confirm(ctx context.Context, req coordinator.ConfirmDeploymentRequest) (*interfaces.ContractRegistration, error)
}

// Verifier answers the read-only certificate queries.
type Verifier interface {
	Verify(ctx context.Context, network interfaces.NetworkName, txHash string) (*interfaces.VerificationResult, error)
	CertificateStatus(ctx context.Context, network interfaces.NetworkName, institutionID interfaces.InstitutionID, studentID string) (*interfaces.RevocationStatus, error)
	Certificates(ctx context.Context, network interfaces.NetworkName, institutionID interfaces.InstitutionID) ([]interfaces.CertificateSummary, error)
}

// Dependencies are the collaborators of the Handler. Archive and Limiter are
// optional.
type Dependencies struct {
	Institutions interfaces.InstitutionStore
	Registry     interfaces.ContractRegistry
	Issuance     IssuanceCoordinator
	Revocation   RevocationCoordinator
	Deployment   DeploymentCoordinator
	Verifier     Verifier
	Uploads      interfaces.UploadStore
	Archive      interfaces.StorageBackend
	Limiter      ratelimit.Limiter
}

type Config struct {
	// MaxUploadBytes bounds multipart request bodies.
	MaxUploadBytes int64

	// MaxBodyBytes bounds JSON request bodies.
	MaxBodyBytes int64

	// PublicPolicy is the rate limit applied to the public routes.
	PublicPolicy ratelimit.Policy
}

func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 10 << 20,
		MaxBodyBytes:   64 << 10,
		PublicPolicy:   ratelimit.Policy{Name: "public", Limit: 60, Window: time.Minute},
	}
}

// Handler serves the institution and public HTTP API.
type Handler struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger
}

func NewHandler(deps Dependencies, cfg Config, log *slog.Logger) *Handler {
	defaults := DefaultConfig()
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.PublicPolicy.Limit <= 0 || cfg.PublicPolicy.Window <= 0 {
		cfg.PublicPolicy = defaults.PublicPolicy
	}
	return &Handler{deps: deps, cfg: cfg, log: log}
}

// RegisterRoutes configures the HTTP router with the API endpoints:
//   - POST /api/institutions, GET /api/institutions/me
//   - POST /api/documents/{deploy,issue,revoke}/{prepare,confirm}
//   - GET /api/documents/certificates/{network}
//   - the rate limited /api/public/* verification routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/institutions", h.HandleSignup)
	r.Get("/api/institutions/me", h.HandleProfile)

	r.Post("/api/documents/deploy/prepare", h.HandlePrepareDeployment)
	r.Post("/api/documents/deploy/confirm", h.HandleConfirmDeployment)
	r.Post("/api/documents/issue/prepare", h.HandlePrepareIssuance)
	r.Post("/api/documents/issue/confirm", h.HandleConfirmIssuance)
	r.Post("/api/documents/revoke/prepare", h.HandlePrepareRevocation)
	r.Post("/api/documents/revoke/confirm", h.HandleConfirmRevocation)
	r.Get("/api/documents/certificates/{network}", h.HandleListCertificates)

	r.Group(func(r chi.Router) {
		if h.deps.Limiter != nil {
			r.Use(ratelimit.Middleware(h.deps.Limiter, h.cfg.PublicPolicy, ratelimit.ClientIP, h.log))
		}
		r.Get("/api/public/verify/{network}/{tx_hash}", h.HandleVerify)
		r.Get("/api/public/status/{network}/{institution_id}/{student_id}", h.HandleStatus)
		r.Post("/api/public/verify-document", h.HandleVerifyDocument)
		r.Post("/api/public/hash", h.HandleHash)
		r.Get("/api/public/documents/{document_hash}", h.HandleDocument)
	})
}

// institutionID returns the identity asserted by the gateway. A request
// without one is treated as unauthorized.
func institutionID(r *http.Request) (interfaces.InstitutionID, error) {
	id := strings.TrimSpace(r.Header.Get(api.InstitutionIDHeader))
	if id == "" {
		return "", fmt.Errorf("%w: missing %s header", interfaces.ErrForbidden, api.InstitutionIDHeader)
	}
	return interfaces.InstitutionID(id), nil
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// formFile parses a multipart request and returns the uploaded file.
func (h *Handler) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, err
		}
		return nil, nil, badRequest(fmt.Errorf("invalid multipart form: %w", err))
	}

	file, header, err := r.FormFile(api.FormFile)
	if err != nil {
		return nil, nil, badRequest(fmt.Errorf("missing %q file: %w", api.FormFile, err))
	}
	return file, header, nil
}

// HandleSignup creates an institution.
//
// Status codes: 201 on success, 400 for a malformed wallet or missing name,
// 409 when the wallet is already registered.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req api.SignupRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	institution, err := h.deps.Institutions.Create(r.Context(), &interfaces.Institution{
		WalletAddress: req.WalletAddress,
		DisplayName:   req.DisplayName,
		Domain:        req.Domain,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info("Institution created", slog.String("institution", institution.ID.String()))
	writeJSON(w, http.StatusCreated, institution)
}

// HandleProfile returns the calling institution and its contracts.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	id, err := institutionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	institution, err := h.deps.Institutions.Get(r.Context(), id)
	if errors.Is(err, interfaces.ErrNotFound) {
		h.writeError(w, r, fmt.Errorf("%w: unknown institution", interfaces.ErrForbidden))
		return
	} else if err != nil {
		h.writeError(w, r, err)
		return
	}

	contracts, err := h.deps.Registry.ListForInstitution(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.InstitutionProfile{Institution: *institution, Contracts: contracts})
}

func (h *Handler) HandlePrepareDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := institutionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req api.PrepareDeploymentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	descriptor, err := h.deps.Deployment.Prepare(r.Context(), coordinator.PrepareDeploymentRequest{
		InstitutionID: id,
		Network:       req.Network,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}

func (h *Handler) HandleConfirmDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := institutionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req api.ConfirmDeploymentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	registration, err := h.deps.Deployment.Confirm(r.Context(), coordinator.ConfirmDeploymentRequest{
		InstitutionID:   id,
		Network:         req.Network,
		ContractAddress: req.ContractAddress,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registration)
}

// HandlePrepareIssuance stages the uploaded document and returns the
// setCertificate descriptor for the wallet to sign.
//
// The request is multipart: a "file" part plus the network, wallet_address,
// student_id, student_name, course, certificate_type and year_of_graduation
// fields. The staged upload is discarded when preparation fails.
func (h *Handler) HandlePrepareIssuance(w http.ResponseWriter, r *http.Request) {
	id, err := institutionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	file, header, err := h.formFile(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer file.Close()

	handle, err := h.deps.Uploads.Stage(r.Context(), id, header.Filename, file)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to stage upload: %w", err))
		return
	}

	descriptor, err := h.deps.Issuance.Prepare(r.Context(), coordinator.PrepareIssuanceRequest{
		InstitutionID:    id,
		Network:          interfaces.NetworkName(r.FormValue(api.FormNetwork)),
		WalletAddress:    r.FormValue(api.FormWalletAddress),
		StudentID:        r.FormValue(api.FormStudentID),
		StudentName:      r.FormValue(api.FormStudentName),
		Course:           r.FormValue(api.FormCourse),
		CertificateType:  r.FormValue(api.FormCertificateType),
		YearOfGraduation: r.FormValue(api.FormYearOfGraduation),
		Upload:           handle,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}

func (h *Handler) HandleConfirmIssuance(w http.ResponseWriter, r *http.Request) {
	id, err := institutionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req api.ConfirmIssuanceRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	txHash, err := h.deps.Issuance.Confirm(r.Context(), coordinator.ConfirmIssuanceRequest{
		InstitutionID:   id,
		Network:         req.Network,
		TransactionHash: req.TransactionHash,
		StudentID:       req.StudentID,
		StudentEmail:    req.StudentEmail,
		StudentName:     req.StudentName,
		UploadHandle:    req.UploadHandle,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.TransactionResponse{TransactionHash: txHash})
}

func (h *Handler) HandlePrepareRevocation(w http.ResponseWriter, r *http.Request) {
	id, err := institutionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req api.PrepareRevocationRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	descriptor, err := h.deps.Revocation.Prepare(r.Context(), coordinator.PrepareRevocationRequest{
		InstitutionID: id,
		Network:       req.Network,
		WalletAddress: req.WalletAddress,
		StudentID:     req.StudentID,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}

func (h *Handler) HandleConfirmRevocation(w http.ResponseWriter, r *http.Request) {
	id, err := institutionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req api.ConfirmRevocationRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	txHash, err := h.deps.Revocation.Confirm(r.Context(), coordinator.ConfirmRevocationRequest{
		InstitutionID:   id,
		Network:         req.Network,
		StudentID:       req.StudentID,
		TransactionHash: req.TransactionHash,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.TransactionResponse{TransactionHash: txHash})
}

// HandleListCertificates lists the calling institution's certificates on a network.
func (h *Handler) HandleListCertificates(w http.ResponseWriter, r *http.Request) {
	id, err := institutionID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	network := interfaces.NetworkName(r.PathValue("network"))

	certificates, err := h.deps.Verifier.Certificates(r.Context(), network, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if certificates == nil {
		certificates = []interfaces.CertificateSummary{}
	}
	writeJSON(w, http.StatusOK, api.CertificateListResponse{Network: network, Certificates: certificates})
}

// HandleVerify reconciles an issuance transaction with the contract state and
// the metadata index.
//
// URL format: GET /api/public/verify/{network}/{tx_hash}
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Verifier.Verify(r.Context(), interfaces.NetworkName(r.PathValue("network")), r.PathValue("tx_hash"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Verifier.CertificateStatus(r.Context(),
		interfaces.NetworkName(r.PathValue("network")),
		interfaces.InstitutionID(r.PathValue("institution_id")),
		r.PathValue("student_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleVerifyDocument compares an uploaded document with an expected hash.
// A mismatch is a successful response.
func (h *Handler) HandleVerifyDocument(w http.ResponseWriter, r *http.Request) {
	file, _, err := h.formFile(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer file.Close()

	expected := r.FormValue(api.FormExpectedHash)
	match, digest, err := verification.VerifyDocument(file, expected)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.DocumentMatchResponse{
		Result:       match,
		DocumentHash: digest.String(),
		ExpectedHash: expected,
	})
}

// HandleHash returns the SHA-256 of an uploaded document.
func (h *Handler) HandleHash(w http.ResponseWriter, r *http.Request) {
	file, _, err := h.formFile(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer file.Close()

	id, err := interfaces.HashDocument(file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.HashResponse{DocumentHash: id.String()})
}

// HandleDocument serves an archived certificate document by its hash.
func (h *Handler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	if h.deps.Archive == nil {
		h.writeError(w, r, fmt.Errorf("%w: document archive is not configured", interfaces.ErrNotFound))
		return
	}

	id, err := interfaces.NewContentIDFromHex(r.PathValue("document_hash"))
	if err != nil {
		h.writeError(w, r, badRequest(fmt.Errorf("invalid document hash: %w", err)))
		return
	}

	data, err := h.deps.Archive.Fetch(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
