package sandbox

import (
	"encoding/json"

	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/zerr"
)

// Error codes returned by the in-container builder. Codes in the 4xx range
// are user errors (bad source, missing manifest); 505 and the JSON-RPC
// method-not-found code mean the image's builder does not speak the requested
// method and the image needs updating.
const (
	codeUserErrorLow     = 400
	codeUserErrorHigh    = 499
	codeProtocolMismatch = 505
	codeMethodNotFound   = -32601
)

// Request is the build invocation payload passed to the in-container builder
// as its single argument.
type Request struct {
	SourceDir    string `json:"source_dir"`
	ArtifactsDir string `json:"artifacts_dir"`
	ScratchDir   string `json:"scratch_dir"`
	ManifestPath string `json:"manifest_path,omitempty"`

	Runtime      string `json:"runtime"`
	Method       string `json:"method"`
	Handler      string `json:"handler,omitempty"`
	Architecture string `json:"architecture,omitempty"`

	Options map[string]string `json:"options,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	DownloadDependencies bool `json:"download_dependencies"`
	CombineDependencies  bool `json:"combine_dependencies"`
	IsLayer              bool `json:"is_layer"`
}

// Response is the single JSON object the builder prints on stdout.
type Response struct {
	Result *ResponseResult `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
}

// ResponseResult carries the success payload.
type ResponseResult struct {
	ArtifactsDir string `json:"artifacts_dir"`
}

// ResponseError carries the failure payload.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ParseResponse decodes the builder's stdout. Anything that is not a single
// JSON response object means the builder crashed before reporting.
func ParseResponse(stdout []byte, image string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(stdout, &resp); err != nil {
		return nil, zerr.With(domain.ErrSandboxCrash, "image", image)
	}
	if resp.Result == nil && resp.Error == nil {
		return nil, zerr.With(domain.ErrSandboxCrash, "image", image)
	}
	if resp.Error != nil {
		return nil, mapResponseError(resp.Error, image)
	}
	return &resp, nil
}

// mapResponseError classifies a builder error payload into the domain error
// taxonomy.
func mapResponseError(respErr *ResponseError, image string) error {
	switch {
	case respErr.Code >= codeUserErrorLow && respErr.Code <= codeUserErrorHigh:
		err := zerr.Wrap(domain.ErrSandboxUserError, respErr.Message)
		return zerr.With(err, "code", respErr.Code)
	case respErr.Code == codeProtocolMismatch || respErr.Code == codeMethodNotFound:
		err := zerr.Wrap(domain.ErrProtocolMismatch, respErr.Message)
		return zerr.With(err, "image", image)
	default:
		err := zerr.Wrap(domain.ErrSandboxCrash, respErr.Message)
		err = zerr.With(err, "code", respErr.Code)
		return zerr.With(err, "image", image)
	}
}
