package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/processor"
	"github.com/rezonia/fiscal-xml/internal/validator"
)

const contentTypeXML = "application/xml; charset=utf-8"

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
}

func (s *Server) handleValidate(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}

	var resp ValidationResponse
	if err := validator.CheckStructure(up.data); err != nil {
		resp.Errors = []string{err.Error()}
	} else {
		summary := s.processor.Summarize(up.data)
		summary.FileName = up.name
		resp.Valid = true
		resp.DocumentType = string(summary.DocumentType)
		resp.Warnings = summary.Warnings
		resp.Summary = &summary
	}

	s.log.Info("xml validation completed",
		zap.String("filename", up.name),
		zap.Bool("valid", resp.Valid),
		zap.Int("errors", len(resp.Errors)),
		zap.Int("warnings", len(resp.Warnings)),
		zap.Int("size", len(up.data)),
	)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRead(c *gin.Context) {
	start := time.Now()
	up, ok := s.readUpload(c)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	doc, err := s.processor.Process(ctx, up.data)
	if err != nil {
		status, _ := classify(err)
		_ = c.Error(err)
		c.JSON(status, ReadResponse{
			ProcessingTimeMS: elapsedMS(start),
			Errors:           []string{err.Error()},
		})
		return
	}

	// read returns the parsed state only
	doc.UpdatedXML = ""
	c.JSON(http.StatusOK, ReadResponse{
		Success:          true,
		Document:         doc,
		ProcessingTimeMS: elapsedMS(start),
		Warnings:         append(slices.Clone(doc.Warnings), processor.Review(doc)...),
	})
}

func (s *Server) handleSummary(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}

	summary := s.processor.Summarize(up.data)
	summary.FileName = up.name
	if summary.Error != "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "failed to extract summary",
			Type:    "summary",
			Details: summary.Error,
		})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleBatchSummary(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "multipart form expected")
		return
	}
	headers := form.File[batchField]
	switch {
	case len(headers) == 0:
		badRequest(c, "no files uploaded")
		return
	case len(headers) > maxBatchFiles:
		badRequest(c, "too many files in batch")
		return
	}

	limit := min(int64(maxBatchFileSize), s.config.MaxFileSize)
	results := make([]BatchSummaryResult, len(headers))
	var (
		inputs []processor.Input
		slots  []int
	)
	for i, header := range headers {
		results[i].FileName = header.Filename
		if !hasXMLExtension(header.Filename) {
			results[i].Error = "file must have .xml extension"
			continue
		}
		if header.Size > limit {
			results[i].Error = "file too large for batch processing"
			continue
		}
		data, err := readFileHeader(header)
		if err != nil {
			results[i].Error = "failed to read uploaded file"
			continue
		}
		inputs = append(inputs, processor.Input{Name: header.Filename, Data: data})
		slots = append(slots, i)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	for j, summary := range s.processor.SummarizeBatch(ctx, inputs) {
		r := &results[slots[j]]
		if summary.Error != "" {
			r.Error = summary.Error
			continue
		}
		r.Success = true
		r.Summary = &summary
	}

	resp := BatchSummaryResponse{TotalFiles: len(headers), Results: results}
	for _, r := range results {
		if r.Success {
			resp.Successful++
		}
	}
	resp.Failed = resp.TotalFiles - resp.Successful

	s.log.Info("batch summary completed",
		zap.Int("total_files", resp.TotalFiles),
		zap.Int("successful", resp.Successful),
		zap.Int("failed", resp.Failed),
	)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSignature(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := s.verifier.Verify(ctx, up.data)
	if err != nil {
		if result == nil {
			respondError(c, err)
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}

	if result.Valid {
		c.JSON(http.StatusOK, result)
	} else {
		c.JSON(http.StatusUnprocessableEntity, result)
	}
}

func (s *Server) handleProcess(c *gin.Context) {
	s.runDocument(c, false)
}

func (s *Server) handleRecalculate(c *gin.Context) {
	s.runDocument(c, true)
}

// runDocument processes the upload, optionally recalculates taxes, and replies
// with JSON or, for ?format=xml, the updated XML itself
func (s *Server) runDocument(c *gin.Context, recalculate bool) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	doc, err := s.processor.Process(ctx, up.data)
	if err == nil && recalculate {
		err = s.processor.RecalculateTaxes(ctx, doc)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "xml" {
		c.Data(http.StatusOK, contentTypeXML, []byte(doc.UpdatedXML))
		return
	}
	c.JSON(http.StatusOK, ProcessResponse{
		Document:   doc,
		UpdatedXML: doc.UpdatedXML,
		Warnings:   doc.Warnings,
	})
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
