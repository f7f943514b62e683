package uploader_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/adapters/outbound/toolexec"
	"github.com/sufield/signet/internal/adapters/outbound/uploader"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

const delivery = "0f6e4a1c-2b7d-4c3e-9a8f-1234567890ab"

func request() ports.UploadRequest {
	return ports.UploadRequest{
		ArtifactPath:  "/build/App.ipa",
		TeamID:        "ABCDE12345",
		AppIdentifier: domain.MustAppIdentifier("com.acme.app"),
		Build:         42,
		Credentials: ports.APICredentials{
			KeyID:    "KEY1234567",
			IssuerID: "issuer-uuid",
			KeyPath:  "/secrets/ABCDE12345/AuthKey_KEY1234567.p8",
		},
	}
}

func respond(stdout, stderr string, err error) *toolexec.Script {
	return &toolexec.Script{Handle: func(toolexec.Command) (toolexec.Result, error) {
		return toolexec.Result{Stdout: []byte(stdout), Stderr: []byte(stderr)}, err
	}}
}

var exit1 = &toolexec.ExitError{Command: "xcrun", Code: 1}

func TestAltool_Success(t *testing.T) {
	t.Parallel()
	script := respond(`{"success-message":"No errors uploading","details":{"delivery-uuid":"`+delivery+`"}}`, "", nil)
	receipt, err := uploader.NewAltool(script, nil).Upload(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, ports.UploadReceipt{Strategy: "altool", DeliveryID: delivery}, receipt)

	calls := script.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "xcrun", calls[0].Name)
	assert.Equal(t, []string{"altool", "--upload-app"}, calls[0].Args[:2])
	assert.Contains(t, calls[0].Args, "/build/App.ipa")
	assert.Equal(t, []string{"API_PRIVATE_KEYS_DIR=/secrets/ABCDE12345"}, calls[0].Env)
}

func TestAltool_ProductErrorsWithZeroExit(t *testing.T) {
	t.Parallel()
	script := respond(`{"product-errors":[{"code":-19232,"message":"The bundle version must be higher than the previously uploaded version."}]}`, "", nil)
	_, err := uploader.NewAltool(script, nil).Upload(context.Background(), request())
	assert.ErrorIs(t, err, ports.ErrConflict)
}

func TestTransporter_Success(t *testing.T) {
	t.Parallel()
	script := respond("[2026-03-01] <main> INFO: Delivery UUID: "+delivery+"\npackage was uploaded successfully", "", nil)
	receipt, err := uploader.NewTransporter(script, nil).Upload(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, delivery, receipt.DeliveryID)
	assert.Equal(t, "iTMSTransporter", script.Calls()[0].Args[0])
}

func TestClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		stderr string
		err    error
		want   error
	}{
		{"auth", "Error: Unable to authenticate. (-19209)", exit1, ports.ErrUnauthorized},
		{"duplicate", "ERROR ITMS-4238: Redundant Binary Upload", exit1, ports.ErrConflict},
		{"network", "The network connection was lost.", exit1, ports.ErrTransient},
		{"missing tool", "", ports.ErrToolUnavailable, ports.ErrToolUnavailable},
	}
	strategies := []func(toolexec.Runner) ports.UploadStrategy{
		func(r toolexec.Runner) ports.UploadStrategy { return uploader.NewAltool(r, nil) },
		func(r toolexec.Runner) ports.UploadStrategy { return uploader.NewTransporter(r, nil) },
	}
	for _, tt := range tests {
		for _, mk := range strategies {
			s := mk(respond("", tt.stderr, tt.err))
			t.Run(s.Name()+"/"+tt.name, func(t *testing.T) {
				_, err := s.Upload(context.Background(), request())
				assert.ErrorIs(t, err, tt.want)
			})
		}
	}
}

func TestUpload_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	req := request()
	req.Credentials.KeyPath = ""
	script := respond("", "", nil)
	_, err := uploader.NewAltool(script, nil).Upload(context.Background(), req)
	assert.ErrorIs(t, err, ports.ErrUnauthorized)
	assert.Empty(t, script.Calls())
}

func TestUpload_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := uploader.NewTransporter(respond("", "", errors.New("killed")), nil).Upload(ctx, request())
	assert.ErrorIs(t, err, context.Canceled)
}
