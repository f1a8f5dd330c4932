// internal/app/system/limits/limits.go
package limits

// Request size limits shared by the decoders and the upload pipeline.
// They keep oversized requests from exhausting memory.
const (
	// MaxJSONBody is the largest JSON request body accepted.
	MaxJSONBody = 1 << 20 // 1 MB

	// MaxUploadFiles is the most images accepted in one upload.
	MaxUploadFiles = 10

	// MaxUploadFileSize is the largest accepted image, in bytes.
	MaxUploadFileSize = 1 << 20 // 1 MB

	// MaxUploadBody bounds a whole multipart upload: one file over the
	// count limit (so the count error can be reported) plus room for
	// headers and boundaries.
	MaxUploadBody = (MaxUploadFiles+1)*MaxUploadFileSize + 1<<20
)
