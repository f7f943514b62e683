// Package ipa reads (and, for fakes and tests, writes) iOS application
// archives: a zip with Payload/<Name>.app/Info.plist, a code signature
// directory and an embedded provisioning profile.
package ipa

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"howett.net/plist"

	"github.com/sufield/signet/internal/ports"
)

const (
	infoPlist       = "Info.plist"
	codeResources   = "_CodeSignature/CodeResources"
	embeddedProfile = "embedded.mobileprovision"
)

// infoPList is the subset of Info.plist keys signet reads.
type infoPList struct {
	BundleIdentifier string `plist:"CFBundleIdentifier"`
	ShortVersion     string `plist:"CFBundleShortVersionString"`
	Version          string `plist:"CFBundleVersion"`
	Name             string `plist:"CFBundleName,omitempty"`
}

// Inspector implements ports.ArtifactInspector.
type Inspector struct{}

var _ ports.ArtifactInspector = Inspector{}

// Inspect opens the archive at p and reads its app bundle metadata.
func (Inspector) Inspect(ctx context.Context, p string) (ports.ArtifactInfo, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return ports.ArtifactInfo{}, fmt.Errorf("ipa: open %s: %w", p, err)
	}
	defer zr.Close()

	bundle := ""
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
		if bundle == "" {
			if dir, ok := appDir(f.Name); ok {
				bundle = dir
			}
		}
	}
	if bundle == "" {
		return ports.ArtifactInfo{}, fmt.Errorf("ipa: %s has no Payload/*.app bundle", p)
	}

	f, ok := files[path.Join(bundle, infoPlist)]
	if !ok {
		return ports.ArtifactInfo{}, fmt.Errorf("ipa: %s has no %s", p, path.Join(bundle, infoPlist))
	}
	data, err := readZipFile(f)
	if err != nil {
		return ports.ArtifactInfo{}, err
	}
	var info infoPList
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return ports.ArtifactInfo{}, fmt.Errorf("ipa: parse Info.plist: %w", err)
	}

	_, signed := files[path.Join(bundle, codeResources)]
	_, embedded := files[path.Join(bundle, embeddedProfile)]
	return ports.ArtifactInfo{
		BundleIdentifier: info.BundleIdentifier,
		Version:          info.ShortVersion,
		Build:            info.Version,
		Signed:           signed,
		EmbeddedProfile:  embedded,
	}, nil
}

// appDir returns "Payload/X.app" when name lives directly under it.
func appDir(name string) (string, bool) {
	parts := strings.Split(name, "/")
	if len(parts) < 3 || parts[0] != "Payload" || !strings.HasSuffix(parts[1], ".app") {
		return "", false
	}
	return parts[0] + "/" + parts[1], true
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("ipa: open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, 8<<20))
}

// Manifest describes an archive for Write.
type Manifest struct {
	Name             string
	BundleIdentifier string
	Version          string
	Build            string
	Signed           bool
	Profile          []byte
}

// Write produces a minimal archive at p. The build tool fake and tests use it.
func Write(p string, m Manifest) error {
	if m.Name == "" {
		m.Name = "App"
	}
	info, err := plist.Marshal(infoPList{
		BundleIdentifier: m.BundleIdentifier,
		ShortVersion:     m.Version,
		Version:          m.Build,
		Name:             m.Name,
	}, plist.XMLFormat)
	if err != nil {
		return fmt.Errorf("ipa: encode Info.plist: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	bundle := "Payload/" + m.Name + ".app/"
	entries := []struct {
		name string
		data []byte
	}{
		{bundle + infoPlist, info},
		{bundle + m.Name, []byte("binary")},
	}
	if m.Signed {
		entries = append(entries, struct {
			name string
			data []byte
		}{bundle + codeResources, []byte("<plist/>")})
	}
	if len(m.Profile) > 0 {
		entries = append(entries, struct {
			name string
			data []byte
		}{bundle + embeddedProfile, m.Profile})
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return err
		}
		if _, err := w.Write(e.data); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.WriteFile(p, buf.Bytes(), 0o644)
}
