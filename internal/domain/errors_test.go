package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sufield/signet/internal/domain"
)

func TestError_MatchesKindAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("503 from remote")
	err := domain.NewError(domain.ErrUploadFailed, "upload", cause)

	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "upload: upload failed: 503 from remote", err.Error())
	assert.NotEmpty(t, domain.Suggestion(err))
}

func TestSuggestion_SurvivesWrapping(t *testing.T) {
	t.Parallel()

	inner := domain.NewError(domain.ErrAuthentication, "list certificates", nil).WithSuggestion("rotate the key")
	wrapped := fmt.Errorf("setup: %w", domain.NewError(domain.ErrInvalidCertificate, "create", inner))

	assert.ErrorIs(t, wrapped, domain.ErrAuthentication)
	assert.ErrorIs(t, wrapped, domain.ErrInvalidCertificate)
	// the outermost typed error wins
	assert.Equal(t, domain.Suggestion(domain.NewError(domain.ErrInvalidCertificate, "", nil)), domain.Suggestion(wrapped))
}

func TestSuggestion_PlainSentinel(t *testing.T) {
	t.Parallel()

	assert.NotEmpty(t, domain.Suggestion(fmt.Errorf("x: %w", domain.ErrBuildConflict)))
	assert.Empty(t, domain.Suggestion(errors.New("unrelated")))
	assert.Empty(t, domain.Suggestion(nil))
}

func TestImportReport_Err(t *testing.T) {
	t.Parallel()

	assert.NoError(t, domain.ImportReport{Imported: []string{"a.p12"}}.Err())

	r := domain.ImportReport{
		Imported: []string{"a.p12"},
		Failed:   []domain.ImportFailure{{File: "b.p12", Err: errors.New("bad password")}},
	}
	err := r.Err()
	assert.ErrorIs(t, err, domain.ErrCertificateImport)

	var importErr *domain.CertificateImportError
	assert.ErrorAs(t, err, &importErr)
	assert.Len(t, importErr.Report.Failed, 1)
	assert.Contains(t, err.Error(), "b.p12")
}
