package handler

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/ragline/ragline/internal/pkg/errcode"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
	"github.com/ragline/ragline/internal/pkg/response"
)

// Ingester feeds one uploaded document into the retrieval corpus.
type Ingester interface {
	Ingest(ctx context.Context, data []byte, fileName string) (int, error)
}

type KnowledgeHandler struct {
	ingester       Ingester
	maxUploadBytes int64
}

type UploadResponse struct {
	FileName string `json:"file_name"`
	Chunks   int    `json:"chunks"`
}

func NewKnowledgeHandler(ingester Ingester, maxUploadBytes int64) *KnowledgeHandler {
	return &KnowledgeHandler{ingester: ingester, maxUploadBytes: maxUploadBytes}
}

func (h *KnowledgeHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		handleError(c, appErr.ErrFileTooLarge)
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read file")
		return
	}

	chunks, err := h.ingester.Ingest(c.Request.Context(), data, file.Filename)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, UploadResponse{
		FileName: file.Filename,
		Chunks:   chunks,
	})
}
