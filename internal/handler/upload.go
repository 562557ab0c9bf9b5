package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/gin-gonic/gin"
)

const maxImageSize = 10 << 20

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// formImage opens the optional image part named field. The returned closer is never nil.
func formImage(c *gin.Context, field string) (*service.ImageUpload, func(), error) {
	noop := func() {}
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, noop, nil
		}
		return nil, noop, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	if header.Size > maxImageSize {
		return nil, noop, fmt.Errorf("%w: image exceeds %d MB", common.ErrInvalidInput, maxImageSize>>20)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, noop, fmt.Errorf("%w: %s is not an image", common.ErrInvalidInput, contentType)
	}

	file, err := header.Open()
	if err != nil {
		return nil, noop, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return &service.ImageUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, func() { file.Close() }, nil
}
