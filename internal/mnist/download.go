package mnist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is a stable mirror of the canonical MNIST files.
const DefaultBaseURL = "https://storage.googleapis.com/cvdf-datasets/mnist/"

// downloadFile describes one of the four canonical MNIST archives.
type downloadFile struct {
	Name   string
	SHA256 string
}

// The published SHA-256 digests of the gzipped MNIST files.
var downloadFiles = []downloadFile{
	{trainImages + ".gz", "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609"},
	{trainLabels + ".gz", "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c"},
	{testImages + ".gz", "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6"},
	{testLabels + ".gz", "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6"},
}

// Download fetches the four canonical MNIST files into dataDir.
//
// Files already present with a matching checksum are kept. baseURL
// defaults to DefaultBaseURL when empty. Each file is verified against
// its published SHA-256 digest before being moved into place.
func Download(ctx context.Context, dataDir, baseURL string, log *logrus.Logger) error {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	for _, f := range downloadFiles {
		dest := filepath.Join(dataDir, f.Name)

		if ok, _ := verifyChecksum(dest, f.SHA256); ok {
			log.WithField("file", f.Name).Debug("already downloaded, checksum ok")
			continue
		}

		url := baseURL + f.Name
		log.WithFields(logrus.Fields{"file": f.Name, "url": url}).Info("downloading")

		if err := fetchFile(ctx, url, dest, f.SHA256); err != nil {
			return fmt.Errorf("failed to download %s: %w", f.Name, err)
		}
	}

	return nil
}

// fetchFile downloads url into dest, verifying the SHA-256 digest of
// the body before renaming the temp file into place.
func fetchFile(ctx context.Context, url, dest, wantSHA256 string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != wantSHA256 {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, wantSHA256)
	}

	return os.Rename(tmp.Name(), dest)
}

// verifyChecksum reports whether path exists and hashes to wantSHA256.
func verifyChecksum(path, wantSHA256 string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return false, err
	}

	return hex.EncodeToString(hasher.Sum(nil)) == wantSHA256, nil
}
