package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/databridge/databridge/internal/apperror"
	"github.com/databridge/databridge/internal/connector"
)

// MaxUploadSize bounds direct uploads.
const MaxUploadSize = 10 * 1024 * 1024 // 10 MiB

var uploadExtensions = []string{"csv", "json", "xls", "xlsx", "txt"}

type IngestRequest struct {
	SourceType string          `json:"source_type"`
	TableName  string          `json:"table_name"`
	Config     json.RawMessage `json:"config"`
}

// Validate checks the source type and its per-type required config fields,
// returning the parsed tagged-union config. Nothing is persisted and no
// connector is constructed until this passes.
func (r IngestRequest) Validate() (*connector.Config, *apperror.AppError) {
	if r.SourceType == "" {
		return nil, apperror.New(apperror.BadRequest,
			fmt.Sprintf("missing required field: source_type (valid: %s)", strings.Join(connector.Types(), ", ")))
	}
	cfg, err := connector.ParseConfig(r.SourceType, r.Config)
	if err != nil {
		return nil, apperror.New(apperror.BadRequest, err.Error())
	}
	return cfg, nil
}

// EffectiveTable applies the default table name.
func (r IngestRequest) EffectiveTable() string {
	if r.TableName == "" {
		return "default"
	}
	return r.TableName
}

type UploadRequest struct {
	Filename  string
	TableName string
	Content   []byte
}

func (r UploadRequest) Validate() *apperror.AppError {
	if r.Filename == "" {
		return apperror.New(apperror.BadRequest, "missing required field: filename")
	}
	if len(r.Content) == 0 {
		return apperror.New(apperror.BadRequest, "missing required field: content")
	}
	if len(r.Content) > MaxUploadSize {
		return apperror.New(apperror.BadRequest,
			fmt.Sprintf("file too large, maximum size: %dMB", MaxUploadSize/(1024*1024)))
	}

	i := strings.LastIndexByte(r.Filename, '.')
	if i < 0 || i == len(r.Filename)-1 {
		return apperror.New(apperror.UnsupportedFormat, "file must have an extension")
	}
	ext := strings.ToLower(r.Filename[i+1:])
	for _, allowed := range uploadExtensions {
		if ext == allowed {
			return nil
		}
	}
	return apperror.New(apperror.UnsupportedFormat,
		fmt.Sprintf("unsupported file format: .%s (supported: %s)", ext, strings.Join(uploadExtensions, ", ")))
}

func (r UploadRequest) EffectiveTable() string {
	if r.TableName == "" {
		return "default"
	}
	return r.TableName
}
