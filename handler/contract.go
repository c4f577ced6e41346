package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/Ampplex/InfluencerFlow-sub001/model"
	"github.com/Ampplex/InfluencerFlow-sub001/service"
	"github.com/gin-gonic/gin"
)

// slack for the non-file multipart fields and part headers
const multipartOverhead = 1 << 20

type ContractHandler struct {
	contracts *service.ContractService
}

func NewContractHandler(contracts *service.ContractService) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

type generateRequest struct {
	InfluencerID string `json:"influencer_id"`
	BrandID      string `json:"brand_id"`
	model.ContractData
}

// Preview renders the posted template fields and returns the PDF inline
func (h *ContractHandler) Preview(c *gin.Context) {
	var data model.ContractData
	if err := c.ShouldBindJSON(&data); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	pdf, err := h.contracts.Preview(c.Request.Context(), data)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="contract-preview.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Generate creates and stores a new contract awaiting signature
func (h *ContractHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	contract, err := h.contracts.Generate(c.Request.Context(), service.GenerateInput{
		InfluencerID: req.InfluencerID,
		BrandID:      req.BrandID,
		Data:         req.ContractData,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, contract)
}

// Sign accepts a multipart form with contract_id, user_id and signature_file
func (h *ContractHandler) Sign(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, service.MaxSignatureBytes+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			badRequest(c, fmt.Sprintf("File too large. Maximum size is %d MB", service.MaxSignatureBytes>>20))
			return
		}
		badRequest(c, "Invalid multipart form")
		return
	}

	in := service.SignInput{
		ContractID: formValue(form, "contract_id"),
		UserID:     formValue(form, "user_id"),
	}

	if files := form.File["signature_file"]; len(files) > 0 {
		in.Signature, err = readSignature(files[0])
		if err != nil {
			badRequest(c, "Failed to read signature_file")
			return
		}
		in.MimeType = files[0].Header.Get("Content-Type")
	}

	contract, err := h.contracts.Sign(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// readSignature reads at most one byte past the size limit so oversize
// uploads are still classified by the validator.
func readSignature(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(io.LimitReader(f, service.MaxSignatureBytes+1))
}

func (h *ContractHandler) Get(c *gin.Context) {
	contract, err := h.contracts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// List returns the caller's contracts for ?user_id=&role=brand|influencer
func (h *ContractHandler) List(c *gin.Context) {
	contracts, err := h.contracts.List(c.Request.Context(), c.Query("user_id"), c.Query("role"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, contracts)
}
