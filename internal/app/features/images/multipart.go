// internal/app/features/images/multipart.go
package images

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dalemusser/groupsnap/internal/app/services/imagepipe"
	"github.com/dalemusser/groupsnap/internal/app/system/apperr"
	"github.com/dalemusser/groupsnap/internal/app/system/limits"
)

// FieldName is the multipart field carrying the files.
const FieldName = "images"

// readFiles streams the "images" parts of a multipart body into memory,
// failing with the upload limit errors as soon as a limit is crossed.
func readFiles(w http.ResponseWriter, r *http.Request) ([]imagepipe.FileInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxUploadBody)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Validation("No images uploaded")
	}

	var files []imagepipe.FileInput
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		if part.FormName() != FieldName || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		if len(files) == imagepipe.MaxFiles {
			_ = part.Close()
			return nil, apperr.ErrTooManyFiles
		}

		data, err := io.ReadAll(io.LimitReader(part, imagepipe.MaxFileSize+1))
		_ = part.Close()
		if err != nil {
			return nil, classify(err)
		}
		if len(data) > imagepipe.MaxFileSize {
			return nil, apperr.ErrFileTooLarge
		}
		files = append(files, imagepipe.FileInput{
			Filename:    part.FileName(),
			ContentType: contentType(part.Header.Get("Content-Type"), data),
			Data:        data,
		})
	}
	return files, nil
}

func classify(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apperr.ErrFileTooLarge
	}
	return apperr.Validation("Malformed upload")
}

// contentType prefers the declared part type and sniffs only when the
// client sent none.
func contentType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return strings.ToLower(mt)
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}
