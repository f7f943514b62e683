package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sufield/signet/internal/ports"
)

// Uploader is an upload strategy that delivers straight into a Remote.
// Errors scripted with FailNext are returned first, one per call.
type Uploader struct {
	name   string
	remote *Remote

	mu       sync.Mutex
	failures []error
	calls    int
}

var _ ports.UploadStrategy = (*Uploader)(nil)

// NewUploader returns a strategy called name. remote may be nil, in which
// case successful uploads are only counted.
func NewUploader(name string, remote *Remote) *Uploader {
	return &Uploader{name: name, remote: remote}
}

func (u *Uploader) Name() string { return u.name }

// FailNext scripts the next failures.
func (u *Uploader) FailNext(errs ...error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failures = append(u.failures, errs...)
}

// Calls returns the number of Upload calls.
func (u *Uploader) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

func (u *Uploader) Upload(ctx context.Context, req ports.UploadRequest) (ports.UploadReceipt, error) {
	u.mu.Lock()
	u.calls++
	var err error
	if len(u.failures) > 0 {
		err, u.failures = u.failures[0], u.failures[1:]
	}
	n := u.calls
	u.mu.Unlock()

	if err != nil {
		return ports.UploadReceipt{}, err
	}
	if err := ctx.Err(); err != nil {
		return ports.UploadReceipt{}, err
	}
	if u.remote != nil {
		u.remote.Upload(req.TeamID, req.AppIdentifier, req.Version, req.Build)
	}
	return ports.UploadReceipt{Strategy: u.name, DeliveryID: fmt.Sprintf("%s-%d", u.name, n)}, nil
}
