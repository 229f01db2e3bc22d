package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// maxBatchFiles bounds the files accepted by batch-summary
	maxBatchFiles = 50
	// maxBatchFileSize bounds each file of a batch
	maxBatchFileSize = 5 << 20

	uploadField = "file"
	batchField  = "files"
)

type upload struct {
	name string
	data []byte
}

// readUpload returns the XML sent either as multipart field "file" or as the
// raw request body. On failure the response has already been written.
func (s *Server) readUpload(c *gin.Context) (upload, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile(uploadField)
		if err != nil {
			badRequest(c, fmt.Sprintf("multipart field %q missing or invalid", uploadField))
			return upload{}, false
		}
		if !hasXMLExtension(header.Filename) {
			badRequest(c, "file must have .xml extension")
			return upload{}, false
		}
		if header.Size > s.config.MaxFileSize {
			tooLarge(c, s.config.MaxFileSize)
			return upload{}, false
		}
		data, err := readFileHeader(header)
		if err != nil {
			badRequest(c, "failed to read uploaded file")
			return upload{}, false
		}
		if len(data) == 0 {
			badRequest(c, "empty file")
			return upload{}, false
		}
		return upload{name: header.Filename, data: data}, true
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxFileSize))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			tooLarge(c, s.config.MaxFileSize)
		} else {
			badRequest(c, "failed to read request body")
		}
		return upload{}, false
	}
	if len(data) == 0 {
		badRequest(c, "empty request body")
		return upload{}, false
	}
	return upload{name: "body.xml", data: data}, true
}

func readFileHeader(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func hasXMLExtension(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml")
}

func tooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Error: fmt.Sprintf("file too large, maximum is %d bytes", limit),
		Type:  "file_too_large",
	})
}
