package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"golang.org/x/text/unicode/norm"
)

// UnidocLicenseEnv holds the unipdf metered license key used for PDFs.
const UnidocLicenseEnv = "UNIDOC_LICENSE_KEY"

var SupportedExtensions = []string{".txt", ".md", ".pdf"}

func IsSupportedFile(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// DiscoverFiles walks root recursively and returns the supported files not
// excluded by the ignore matcher, in lexical order.
func DiscoverFiles(root string, ignore *IgnoreMatcher) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data dir %s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}

		if ignore != nil && ignore.Ignored(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() && IsSupportedFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk data dir: %w", err)
	}

	return files, nil
}

// DocumentReader extracts plain text from the supported document types.
type DocumentReader struct {
	licenseKey  string
	licenseOnce sync.Once
	licenseErr  error
}

func NewDocumentReader(unidocLicenseKey string) *DocumentReader {
	return &DocumentReader{licenseKey: unidocLicenseKey}
}

// Read returns the NFC-normalised text of path. Files with an unsupported
// extension yield empty text rather than an error.
func (r *DocumentReader) Read(path string) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		text, err = readPlain(path)
	case ".pdf":
		text, err = r.readPDF(path)
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return norm.NFC.String(text), nil
}

func readPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func (r *DocumentReader) readPDF(path string) (string, error) {
	r.licenseOnce.Do(func() {
		if r.licenseKey == "" {
			r.licenseErr = errors.New(UnidocLicenseEnv + " is not set")
			return
		}
		r.licenseErr = license.SetMeteredKey(r.licenseKey)
	})
	if r.licenseErr != nil {
		return "", fmt.Errorf("pdf support: %w: %w", ErrCollaboratorUnavailable, r.licenseErr)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		return "", fmt.Errorf("parse pdf %s: %w", path, err)
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("count pages %s: %w", path, err)
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("get page %d of %s: %w", i, path, err)
		}

		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("extract page %d of %s: %w", i, path, err)
		}

		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("extract page %d of %s: %w", i, path, err)
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, "\n"), nil
}
