package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

var errMissingFile = errors.New("missing file")

// readFormFile reads the multipart file field name, refusing files larger
// than limit bytes. A missing field is errMissingFile.
func readFormFile(c *gin.Context, name string, limit int64) ([]byte, string, error) {
	fh, err := c.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", errMissingFile
		}
		return nil, "", fmt.Errorf("invalid multipart form: %w", err)
	}
	if limit > 0 && fh.Size > limit {
		return nil, "", fmt.Errorf("%s exceeds the %d byte limit", name, limit)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	reader := io.Reader(f)
	if limit > 0 {
		reader = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, "", fmt.Errorf("%s exceeds the %d byte limit", name, limit)
	}

	return data, fh.Filename, nil
}

// attachment sends data as a download named fileName.
func attachment(c *gin.Context, contentType, fileName string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, contentType, data)
}
