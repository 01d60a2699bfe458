package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ruteri/certificate-trust-backend/chain"
	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// PrepareIssuanceRequest is the first half of an issuance. Upload refers to a
// document already staged in the UploadStore.
type PrepareIssuanceRequest struct {
	InstitutionID    interfaces.InstitutionID
	Network          interfaces.NetworkName
	WalletAddress    string
	StudentID        string
	StudentName      string
	Course           string
	CertificateType  string
	YearOfGraduation string
	Upload           interfaces.UploadHandle
}

// ConfirmIssuanceRequest reports the transaction the wallet sent for a prepared issuance.
type ConfirmIssuanceRequest struct {
	InstitutionID   interfaces.InstitutionID
	Network         interfaces.NetworkName
	TransactionHash string
	StudentID       string
	StudentEmail    string
	StudentName     string
	UploadHandle    interfaces.UploadHandle
}

// Issuance coordinates certificate issuance.
type Issuance struct {
	deps     Dependencies
	uploads  interfaces.UploadStore
	metadata interfaces.MetadataStore
	archive  interfaces.StorageBackend
	notifier interfaces.Notifier
	hasher   interfaces.DocumentHasher
	cfg      Config
	log      *slog.Logger
}

// NewIssuance creates an issuance coordinator. archive may be nil, in which
// case confirmed documents are not archived.
func NewIssuance(deps Dependencies, uploads interfaces.UploadStore, metadata interfaces.MetadataStore, archive interfaces.StorageBackend, notifier interfaces.Notifier, cfg Config, log *slog.Logger) *Issuance {
	return &Issuance{
		deps:     deps,
		uploads:  uploads,
		metadata: metadata,
		archive:  archive,
		notifier: notifier,
		hasher:   interfaces.SHA256Hasher{},
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// Prepare validates an issuance and returns the descriptor the wallet signs.
// On any failure the staged upload is removed and the document is never hashed.
// An upload staged by another institution is rejected and left in place.
func (c *Issuance) Prepare(ctx context.Context, req PrepareIssuanceRequest) (descriptor *interfaces.IssuanceDescriptor, err error) {
	upload := req.Upload
	defer func() {
		if err != nil {
			c.discard(upload)
		}
		observe(c.log, kindIssuance, phasePrepare, err)
	}()

	if req.Upload == "" {
		return nil, fmt.Errorf("%w: no document uploaded", interfaces.ErrBadRequest)
	}
	if !c.uploads.OwnedBy(req.Upload, req.InstitutionID) {
		upload = ""
		return nil, fmt.Errorf("%w: upload was not staged by this institution", interfaces.ErrForbidden)
	}
	if strings.TrimSpace(req.StudentID) == "" || strings.TrimSpace(req.StudentName) == "" {
		return nil, fmt.Errorf("%w: student id and student name are required", interfaces.ErrBadRequest)
	}

	if _, err := c.deps.authorize(ctx, req.InstitutionID, req.WalletAddress); err != nil {
		return nil, err
	}

	reader, registration, err := c.deps.contractFor(ctx, req.InstitutionID, req.Network)
	if err != nil {
		return nil, err
	}

	if _, err := checkReserve(ctx, reader, req.WalletAddress, c.cfg.MinIssuanceReserve); err != nil {
		return nil, err
	}

	existing, err := reader.GetCertificateInfo(ctx, registration.Address, req.StudentID)
	switch {
	case err != nil:
		c.log.Warn("Could not check for an existing certificate, leaving it to the contract",
			slog.String("network", req.Network.String()),
			slog.String("student_id", req.StudentID),
			"err", err)
	case existing.DocumentHash != "":
		return nil, fmt.Errorf("%w: a certificate for student %s already exists", interfaces.ErrConflict, req.StudentID)
	}

	documentHash, err := c.hashUpload(req.Upload)
	if err != nil {
		return nil, err
	}

	chainID, err := chainIDString(ctx, reader)
	if err != nil {
		return nil, err
	}

	fields := interfaces.CertificateFields{
		StudentID:        req.StudentID,
		DocumentHash:     documentHash.String(),
		StudentName:      req.StudentName,
		IssuerID:         req.InstitutionID.String(),
		Course:           req.Course,
		CertificateType:  req.CertificateType,
		YearOfGraduation: req.YearOfGraduation,
	}
	calldata, err := chain.PackSetCertificate(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to pack setCertificate: %w", err)
	}

	c.log.Info("Prepared certificate issuance",
		slog.String("institution_id", req.InstitutionID.String()),
		slog.String("network", req.Network.String()),
		slog.String("student_id", req.StudentID),
		slog.String("document_hash", fields.DocumentHash))

	return &interfaces.IssuanceDescriptor{
		Network:         req.Network,
		ChainID:         chainID,
		ContractAddress: registration.Address,
		Fields:          fields,
		DocumentHash:    fields.DocumentHash,
		FileName:        c.uploads.Filename(req.Upload),
		UploadHandle:    req.Upload,
		Calldata:        hexutil.Encode(calldata),
	}, nil
}

// Confirm records a sent issuance. A missing or malformed transaction hash and
// an upload staged by another institution are errors; metadata, archiving and
// notification failures are logged. The caller's own staged upload is removed
// on every path.
func (c *Issuance) Confirm(ctx context.Context, req ConfirmIssuanceRequest) (txHash string, err error) {
	upload := req.UploadHandle
	defer func() {
		c.discard(upload)
		observe(c.log, kindIssuance, phaseConfirm, err)
	}()

	if upload != "" && !c.uploads.OwnedBy(upload, req.InstitutionID) {
		upload = ""
		return "", fmt.Errorf("%w: upload was not staged by this institution", interfaces.ErrForbidden)
	}
	if err := validateTxHash(req.TransactionHash); err != nil {
		return "", err
	}
	txHash = strings.ToLower(req.TransactionHash)
	log := c.log.With(
		slog.String("network", req.Network.String()),
		slog.String("tx_hash", txHash),
		slog.String("student_id", req.StudentID))

	if req.StudentID != "" {
		err := c.metadata.Create(ctx, &interfaces.CertificateMetadata{
			StudentID:       req.StudentID,
			StudentEmail:    req.StudentEmail,
			TransactionHash: txHash,
			Network:         req.Network,
			IssuerID:        req.InstitutionID,
		})
		switch {
		case errors.Is(err, interfaces.ErrConflict):
			log.Warn("Certificate metadata already recorded", "err", err)
		case err != nil:
			log.Error("Failed to record certificate metadata", "err", err)
		}
	}

	document := c.readUpload(req.UploadHandle, log)

	if document != nil && c.archive != nil {
		if id, err := c.archive.Store(ctx, document); err != nil {
			log.Error("Failed to archive certificate document", "err", err)
		} else {
			log.Debug("Archived certificate document", slog.String("document_hash", id.String()))
		}
	}

	if req.StudentEmail != "" && c.notifier != nil {
		notification := interfaces.Notification{
			Email:           req.StudentEmail,
			Name:            req.StudentName,
			TransactionHash: txHash,
			VerificationURL: fmt.Sprintf("%s/%s/%s", c.cfg.VerificationBaseURL, req.Network, txHash),
		}
		if document != nil {
			notification.Attachments = append(notification.Attachments, interfaces.Attachment{
				Filename:    c.uploads.Filename(req.UploadHandle),
				ContentType: http.DetectContentType(document),
				Data:        document,
			})
		}
		if err := c.notifier.Notify(ctx, notification); err != nil {
			log.Error("Failed to notify student", "err", err)
		}
	}

	log.Info("Confirmed certificate issuance")
	return txHash, nil
}

func (c *Issuance) hashUpload(handle interfaces.UploadHandle) (interfaces.ContentID, error) {
	r, err := c.uploads.Open(handle)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return interfaces.ContentID{}, fmt.Errorf("%w: uploaded document is gone", interfaces.ErrBadRequest)
		}
		return interfaces.ContentID{}, err
	}
	defer r.Close()
	return c.hasher.Hash(r)
}

func (c *Issuance) readUpload(handle interfaces.UploadHandle, log *slog.Logger) []byte {
	if handle == "" {
		return nil
	}
	r, err := c.uploads.Open(handle)
	if err != nil {
		log.Warn("Staged document unavailable", "err", err)
		return nil
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		log.Warn("Failed to read staged document", "err", err)
		return nil
	}
	return data
}

func (c *Issuance) discard(handle interfaces.UploadHandle) {
	if handle == "" {
		return
	}
	if err := c.uploads.Remove(handle); err != nil {
		c.log.Warn("Failed to remove staged upload", slog.String("handle", string(handle)), "err", err)
	}
}
