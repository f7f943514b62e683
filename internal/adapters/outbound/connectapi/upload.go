package connectapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sufield/signet/internal/ports"
)

// StrategyName is the name of the HTTP upload strategy.
const StrategyName = "api"

// Uploader delivers artifacts through the remote build upload endpoints.
type Uploader struct {
	client *Client
}

var _ ports.UploadStrategy = (*Uploader)(nil)

// Uploader returns the "api" upload strategy bound to c's credential.
func (c *Client) Uploader() *Uploader { return &Uploader{client: c} }

func (u *Uploader) Name() string { return StrategyName }

type buildUploadAttributes struct {
	ShortVersion string `json:"cfBundleShortVersionString"`
	Version      string `json:"cfBundleVersion"`
	Platform     string `json:"platform"`
}

type uploadHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type uploadOperation struct {
	Method         string         `json:"method"`
	URL            string         `json:"url"`
	Offset         int64          `json:"offset"`
	Length         int64          `json:"length"`
	RequestHeaders []uploadHeader `json:"requestHeaders,omitempty"`
}

type buildUploadFileAttributes struct {
	FileName         string            `json:"fileName,omitempty"`
	FileSize         int64             `json:"fileSize,omitempty"`
	UTI              string            `json:"uti,omitempty"`
	AssetType        string            `json:"assetType,omitempty"`
	UploadOperations []uploadOperation `json:"uploadOperations,omitempty"`
	Uploaded         bool              `json:"uploaded,omitempty"`
}

// Upload reserves a build upload, sends every part the remote asks for and
// commits the file.
func (u *Uploader) Upload(ctx context.Context, req ports.UploadRequest) (ports.UploadReceipt, error) {
	c := u.client
	f, err := os.Open(req.ArtifactPath)
	if err != nil {
		return ports.UploadReceipt{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return ports.UploadReceipt{}, fmt.Errorf("stat artifact: %w", err)
	}

	appID, err := c.appID(ctx, req.AppIdentifier)
	if err != nil {
		return ports.UploadReceipt{}, err
	}
	upload, err := c.create(ctx, "/v1/buildUploads", newResource{
		Type: "buildUploads",
		Attributes: buildUploadAttributes{
			ShortVersion: req.Version.String(),
			Version:      req.Build.String(),
			Platform:     "IOS",
		},
		Relationships: map[string]any{"app": toOne("apps", appID)},
	})
	if err != nil {
		return ports.UploadReceipt{}, err
	}

	file, err := c.create(ctx, "/v1/buildUploadFiles", newResource{
		Type: "buildUploadFiles",
		Attributes: buildUploadFileAttributes{
			FileName:  filepath.Base(req.ArtifactPath),
			FileSize:  info.Size(),
			UTI:       "com.apple.ipa",
			AssetType: "ASSET",
		},
		Relationships: map[string]any{"buildUpload": toOne("buildUploads", upload.Data.ID)},
	})
	if err != nil {
		return ports.UploadReceipt{}, err
	}
	attrs, err := decodeAttributes[buildUploadFileAttributes](file.Data)
	if err != nil {
		return ports.UploadReceipt{}, err
	}
	if len(attrs.UploadOperations) == 0 {
		return ports.UploadReceipt{}, fmt.Errorf("build upload %s: %w: no upload operations", upload.Data.ID, errUnexpected)
	}

	for i, op := range attrs.UploadOperations {
		if err := c.sendPart(ctx, f, op); err != nil {
			return ports.UploadReceipt{}, fmt.Errorf("upload part %d/%d: %w", i+1, len(attrs.UploadOperations), err)
		}
	}

	commit := newDocument{Data: newResource{
		Type:       "buildUploadFiles",
		ID:         file.Data.ID,
		Attributes: buildUploadFileAttributes{Uploaded: true},
	}}
	if err := c.do(ctx, http.MethodPatch, c.endpoint("/v1/buildUploadFiles/"+url.PathEscape(file.Data.ID), nil), commit, nil); err != nil {
		return ports.UploadReceipt{}, err
	}
	c.logger.Info("artifact uploaded", "build_upload", upload.Data.ID, "parts", len(attrs.UploadOperations), "bytes", info.Size())
	return ports.UploadReceipt{Strategy: StrategyName, DeliveryID: upload.Data.ID}, nil
}

// sendPart uploads one byte range to a presigned URL. The URL carries its
// own authorization, so no bearer token is attached.
func (c *Client) sendPart(ctx context.Context, f io.ReaderAt, op uploadOperation) error {
	method := op.Method
	if method == "" {
		method = http.MethodPut
	}
	body := io.NewSectionReader(f, op.Offset, op.Length)
	req, err := http.NewRequestWithContext(ctx, method, op.URL, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.ContentLength = op.Length
	for _, h := range op.RequestHeaders {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ports.ErrTransient, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, req.URL.Path, resp.StatusCode, data)
	}
	return nil
}
