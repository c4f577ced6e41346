package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/Ampplex/InfluencerFlow-sub001/model"
	"github.com/Ampplex/InfluencerFlow-sub001/pkg/contractpdf"
	"github.com/Ampplex/InfluencerFlow-sub001/pkg/logger"
	"github.com/Ampplex/InfluencerFlow-sub001/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const pdfContentType = "application/pdf"

// Renderer produces contract PDFs
type Renderer interface {
	Render(ctx context.Context, data model.ContractData, sig *contractpdf.Signature) ([]byte, error)
}

// GenerateInput is what a caller supplies to create a contract
type GenerateInput struct {
	InfluencerID string `json:"influencer_id" validate:"required"`
	BrandID      string `json:"brand_id" validate:"required"`
	Data         model.ContractData
}

// SignInput carries one signing attempt
type SignInput struct {
	ContractID string `json:"contract_id" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
	Signature  []byte `json:"signature_file" validate:"required,min=1"`
	MimeType   string `json:"-"`
}

type listInput struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=brand influencer"`
}

// ContractService runs the contract lifecycle: preview, generate, sign,
// get and list. It holds no state of its own between calls.
type ContractService struct {
	repo     ContractRepository
	blobs    BlobStore
	renderer Renderer
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

type Option func(*ContractService)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *ContractService) { s.now = now }
}

// WithIDGenerator overrides contract id allocation
func WithIDGenerator(newID func() string) Option {
	return func(s *ContractService) { s.newID = newID }
}

func NewContractService(repo ContractRepository, blobs BlobStore, renderer Renderer, opts ...Option) *ContractService {
	s := &ContractService{
		repo:     repo,
		blobs:    blobs,
		renderer: renderer,
		validate: newValidator(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// UnsignedKey is where the first render of a contract is stored
func UnsignedKey(contractID string) string {
	return "contracts/" + contractID + ".pdf"
}

// SignedKey is where the signed render is stored. The unsigned object is
// kept alongside it.
func SignedKey(contractID string) string {
	return "contracts/" + contractID + "_signed.pdf"
}

// SignatureKey is where the raw signature image is stored
func SignatureKey(contractID, userID, ext string) string {
	return "signatures/" + contractID + "_" + userID + "." + ext
}

// Preview renders data without persisting anything
func (s *ContractService) Preview(ctx context.Context, data model.ContractData) ([]byte, error) {
	pdf, err := s.renderer.Render(ctx, data, nil)
	if err != nil {
		return nil, renderError("preview", err)
	}
	return pdf, nil
}

// Generate creates a PENDING_SIGNATURE contract, stores its PDF and links
// the two. A failed upload removes the new row again.
func (s *ContractService) Generate(ctx context.Context, in GenerateInput) (*model.Contract, error) {
	const op = "generate"

	if err := s.check(op, in); err != nil {
		return nil, err
	}

	id := s.newID()
	ctx = logger.WithContractID(ctx, id)

	pdf, err := s.renderer.Render(ctx, in.Data, nil)
	if err != nil {
		return nil, renderError(op, err)
	}

	now := s.timestamp()
	contract := &model.Contract{
		ID:           id,
		TemplateID:   model.DefaultTemplateID,
		InfluencerID: in.InfluencerID,
		BrandID:      in.BrandID,
		Status:       model.StatusPendingSignature,
		ContractData: in.Data,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, contract); err != nil {
		logger.Error(ctx, "failed to insert contract", "error", err)
		return nil, storageError(op, "Failed to save contract", err)
	}

	key := UnsignedKey(id)
	if err := s.blobs.Upload(ctx, key, pdf, pdfContentType); err != nil {
		logger.Error(ctx, "failed to upload contract PDF", "key", key, "error", err)
		s.removeRow(ctx, id)
		return nil, storageError(op, "Failed to upload contract PDF", err)
	}

	url := s.blobs.PublicURL(key)
	updatedAt := s.timestamp()
	if err := s.repo.SetContractURL(ctx, id, url, updatedAt); err != nil {
		// the uploaded object stays behind without a row pointing at it
		logger.Error(ctx, "failed to link contract PDF", "key", key, "error", err)
		return nil, storageError(op, "Failed to update contract URL", err)
	}
	contract.ContractURL = url
	contract.UpdatedAt = updatedAt

	metrics.ContractsGeneratedTotal.Inc()
	logger.Info(ctx, "contract generated",
		"influencer_id", contract.InfluencerID,
		"brand_id", contract.BrandID,
		"contract_url", url,
	)
	return contract, nil
}

func (s *ContractService) removeRow(ctx context.Context, id string) {
	if err := s.repo.Delete(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, ErrContractNotFound) {
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "failed to remove contract row after upload failure", "error", err)
		return
	}
	metrics.CompensationsTotal.WithLabelValues("succeeded").Inc()
	logger.Warn(ctx, "removed contract row after upload failure")
}

// Sign validates the signature image, stores it with a re-rendered signed
// PDF and moves the contract to SIGNED.
func (s *ContractService) Sign(ctx context.Context, in SignInput) (*model.Contract, error) {
	const op = "sign"

	if err := s.check(op, in); err != nil {
		return nil, err
	}
	ctx = logger.WithContractID(ctx, in.ContractID)

	contract, err := s.repo.Get(ctx, in.ContractID)
	if err != nil {
		return nil, lookupError(op, err)
	}
	if err := transitionError(op, contract.Status); err != nil {
		return nil, err
	}

	if err := ValidateSignature(in.Signature, in.MimeType); err != nil {
		var fileErr *FileError
		if errors.As(err, &fileErr) {
			metrics.SignatureRejectionsTotal.WithLabelValues(string(fileErr.Reason)).Inc()
			logger.Warn(ctx, "signature rejected", "reason", fileErr.Reason, "size", len(in.Signature))
			return nil, &Error{Kind: KindFileValidation, Op: op, Message: fileErr.Detail, Err: err}
		}
		return nil, err
	}

	// render first so an undecodable image leaves nothing behind in the bucket
	pdf, err := s.renderer.Render(ctx, contract.ContractData, &contractpdf.Signature{Data: in.Signature})
	if err != nil {
		return nil, renderError(op, err)
	}

	sigKey := SignatureKey(in.ContractID, in.UserID, signatureExtension(in.Signature))
	if err := s.blobs.Upload(ctx, sigKey, in.Signature, normalizeMimeType(in.MimeType)); err != nil {
		logger.Error(ctx, "failed to upload signature", "key", sigKey, "error", err)
		return nil, storageError(op, "Failed to upload signature", err)
	}
	signatureURL := s.blobs.PublicURL(sigKey)

	pdfKey := SignedKey(in.ContractID)
	if err := s.blobs.Upload(ctx, pdfKey, pdf, pdfContentType); err != nil {
		logger.Error(ctx, "failed to upload signed PDF", "key", pdfKey, "error", err)
		return nil, storageError(op, "Failed to upload signed contract PDF", err)
	}

	signed, err := s.repo.MarkSigned(ctx, in.ContractID, model.Signing{
		SignedBy:     in.UserID,
		SignedAt:     s.timestamp(),
		SignatureURL: signatureURL,
		ContractURL:  s.blobs.PublicURL(pdfKey),
	})
	if err != nil {
		if errors.Is(err, ErrContractAlreadySigned) {
			logger.Warn(ctx, "contract signed concurrently", "user_id", in.UserID)
			s.restoreSignedPDF(ctx, in.ContractID)
			return nil, &Error{Kind: KindConflict, Op: op, Message: "Contract is already signed", Err: err}
		}
		if errors.Is(err, ErrContractNotPending) {
			return nil, &Error{Kind: KindConflict, Op: op, Message: "Contract is not awaiting signature", Err: err}
		}
		return nil, lookupError(op, err)
	}

	metrics.ContractsSignedTotal.Inc()
	logger.Info(ctx, "contract signed", "signed_by", in.UserID, "contract_url", signed.ContractURL)
	return signed, nil
}

// restoreSignedPDF re-renders the winning signer's PDF after a lost race,
// since the losing attempt has already overwritten the shared key. The
// winner's image is read back through the blob store, not its public URL.
func (s *ContractService) restoreSignedPDF(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)

	winner, err := s.repo.Get(ctx, id)
	if err != nil || winner.SignedBy == nil || winner.SignatureURL == nil || *winner.SignatureURL == "" {
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "cannot restore signed PDF, winning signature unknown", "error", err)
		return
	}

	ext := strings.TrimPrefix(path.Ext(*winner.SignatureURL), ".")
	image, err := s.blobs.Download(ctx, SignatureKey(id, *winner.SignedBy, ext))
	if err != nil {
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "failed to read winning signature", "error", err)
		return
	}

	pdf, err := s.renderer.Render(ctx, winner.ContractData, &contractpdf.Signature{Data: image})
	if err == nil {
		err = s.blobs.Upload(ctx, SignedKey(id), pdf, pdfContentType)
	}
	if err != nil {
		metrics.CompensationsTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "failed to restore signed PDF", "error", err)
		return
	}
	metrics.CompensationsTotal.WithLabelValues("succeeded").Inc()
	logger.Warn(ctx, "restored signed PDF of the winning signer", "signed_by", *winner.SignedBy)
}

func (s *ContractService) Get(ctx context.Context, id string) (*model.Contract, error) {
	const op = "get"
	if strings.TrimSpace(id) == "" {
		return nil, validationError(op, "contract_id is required")
	}

	contract, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, lookupError(op, err)
	}
	return contract, nil
}

// List returns the contracts where userID is the party named by role,
// most recent first.
func (s *ContractService) List(ctx context.Context, userID, role string) ([]*model.Contract, error) {
	const op = "list"

	in := listInput{UserID: userID, Role: strings.ToLower(strings.TrimSpace(role))}
	if err := s.check(op, in); err != nil {
		return nil, err
	}
	r, _ := model.ParseRole(in.Role)

	contracts, err := s.repo.ListByParty(ctx, r, in.UserID)
	if err != nil {
		logger.Error(ctx, "failed to list contracts", "role", r, "error", err)
		return nil, storageError(op, "Failed to list contracts", err)
	}
	return contracts, nil
}

func (s *ContractService) check(op string, in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Kind: KindValidation, Op: op, Message: "Invalid request", Err: err}
	}

	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required", "min":
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		msg = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return &Error{Kind: KindValidation, Op: op, Message: msg, Err: err}
}

// timestamp is the current time at the precision Postgres stores, so a
// response and a later read of the same row agree.
func (s *ContractService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func transitionError(op string, status model.Status) error {
	switch status {
	case model.StatusPendingSignature:
		return nil
	case model.StatusSigned:
		return &Error{Kind: KindConflict, Op: op, Message: "Contract is already signed", Err: ErrContractAlreadySigned}
	default:
		return &Error{Kind: KindConflict, Op: op, Message: "Contract is not awaiting signature", Err: ErrContractNotPending}
	}
}

func renderError(op string, err error) error {
	var re *contractpdf.RenderError
	if errors.As(err, &re) {
		return &Error{Kind: KindRender, Op: op, Message: "Failed to render contract: " + re.Err.Error(), Err: err}
	}
	return &Error{Kind: KindRender, Op: op, Message: "Failed to render contract", Err: err}
}

func lookupError(op string, err error) error {
	if errors.Is(err, ErrContractNotFound) {
		return &Error{Kind: KindNotFound, Op: op, Message: "Contract not found", Err: err}
	}
	return storageError(op, "Failed to load contract", err)
}
