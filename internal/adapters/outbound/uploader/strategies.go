package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sufield/signet/internal/adapters/outbound/toolexec"
	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/ports"
)

// Strategy names as they appear in upload.strategies.
const (
	AltoolName      = "altool"
	TransporterName = "transporter"
)

var errNoKey = errors.New("no API key file")

func keyEnv(creds ports.APICredentials) ([]string, error) {
	if creds.KeyPath == "" || creds.KeyID == "" || creds.IssuerID == "" {
		return nil, fmt.Errorf("%w: %v", ports.ErrUnauthorized, errNoKey)
	}
	return []string{"API_PRIVATE_KEYS_DIR=" + filepath.Dir(creds.KeyPath)}, nil
}

// Altool uploads with xcrun altool.
type Altool struct {
	runner toolexec.Runner
	logger *slog.Logger
}

var _ ports.UploadStrategy = (*Altool)(nil)

func NewAltool(runner toolexec.Runner, logger *slog.Logger) *Altool {
	return &Altool{runner: runner, logger: logging.OrDiscard(logger).With("strategy", AltoolName)}
}

func (a *Altool) Name() string { return AltoolName }

// altoolOutput is the subset of altool's --output-format json we read.
type altoolOutput struct {
	Success string `json:"success-message"`
	Details struct {
		DeliveryUUID string `json:"delivery-uuid"`
	} `json:"details"`
	ProductErrors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"product-errors"`
}

func (a *Altool) Upload(ctx context.Context, req ports.UploadRequest) (ports.UploadReceipt, error) {
	env, err := keyEnv(req.Credentials)
	if err != nil {
		return ports.UploadReceipt{}, err
	}
	cmd := toolexec.Command{
		Name: "xcrun",
		Args: []string{
			"altool", "--upload-app",
			"--type", "ios",
			"--file", req.ArtifactPath,
			"--apiKey", req.Credentials.KeyID,
			"--apiIssuer", req.Credentials.IssuerID,
			"--output-format", "json",
		},
		Env: env,
	}
	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return ports.UploadReceipt{}, ctx.Err()
		}
		return ports.UploadReceipt{}, classify(AltoolName, res, err)
	}

	var out altoolOutput
	if jsonErr := json.Unmarshal(res.Stdout, &out); jsonErr != nil {
		a.logger.Debug("altool output is not JSON", "error", jsonErr)
	}
	// altool can exit 0 while reporting product errors.
	if len(out.ProductErrors) > 0 {
		pe := out.ProductErrors[0]
		return ports.UploadReceipt{}, classify(AltoolName, res,
			&toolexec.ExitError{Command: cmd.String(), Code: pe.Code, Stderr: pe.Message})
	}
	id := out.Details.DeliveryUUID
	if id == "" {
		id = deliveryID(res.Stdout)
	}
	return ports.UploadReceipt{Strategy: AltoolName, DeliveryID: id}, nil
}

// Transporter uploads with xcrun iTMSTransporter.
type Transporter struct {
	runner toolexec.Runner
	logger *slog.Logger
}

var _ ports.UploadStrategy = (*Transporter)(nil)

func NewTransporter(runner toolexec.Runner, logger *slog.Logger) *Transporter {
	return &Transporter{runner: runner, logger: logging.OrDiscard(logger).With("strategy", TransporterName)}
}

func (t *Transporter) Name() string { return TransporterName }

func (t *Transporter) Upload(ctx context.Context, req ports.UploadRequest) (ports.UploadReceipt, error) {
	env, err := keyEnv(req.Credentials)
	if err != nil {
		return ports.UploadReceipt{}, err
	}
	res, err := t.runner.Run(ctx, toolexec.Command{
		Name: "xcrun",
		Args: []string{
			"iTMSTransporter", "-m", "upload",
			"-assetFile", req.ArtifactPath,
			"-apiKey", req.Credentials.KeyID,
			"-apiIssuer", req.Credentials.IssuerID,
			"-v", "informational",
		},
		Env: env,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ports.UploadReceipt{}, ctx.Err()
		}
		return ports.UploadReceipt{}, classify(TransporterName, res, err)
	}
	id := deliveryID(res.Stdout)
	if id == "" {
		t.logger.Debug("transporter reported no delivery id")
	}
	return ports.UploadReceipt{Strategy: TransporterName, DeliveryID: id}, nil
}
