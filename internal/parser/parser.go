package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/archive"
	"github.com/opengouv/datasync/internal/catalog"
	"github.com/opengouv/datasync/internal/store"
)

// Downloader fetches the raw bytes of a resource file.
type Downloader interface {
	DownloadResource(ctx context.Context, url string) (catalog.Download, error)
}

// Parser turns one resource's file into stored data records.
type Parser interface {
	// ParseAndStore downloads the resource body, decodes it into rows, and
	// writes at most maxRows records through the batch writer. It returns the
	// number of records written.
	ParseAndStore(ctx context.Context, res store.Resource, maxRows int) (int, error)
}

// Deps bundles the collaborators shared by all format parsers.
type Deps struct {
	Downloader Downloader
	Archive    archive.Provider
	Writer     *BatchWriter
	Logger     *zap.Logger
}

// ParserFor selects the parser implementation for a format.
func ParserFor(format Format, deps Deps) (Parser, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	switch format {
	case FormatCSV:
		return &CSVParser{deps: deps}, nil
	case FormatJSON, FormatGeoJSON:
		return &JSONParser{deps: deps}, nil
	case FormatExcel:
		return &ExcelParser{deps: deps}, nil
	default:
		return nil, &UnsupportedFormatError{Format: format.String()}
	}
}

// download fetches the resource body and archives a copy best-effort; an
// archive failure never fails the parse.
func (d Deps) download(ctx context.Context, res store.Resource, format Format) (catalog.Download, error) {
	dl, err := d.Downloader.DownloadResource(ctx, res.URL)
	if err != nil {
		return catalog.Download{}, err
	}

	if d.Archive != nil {
		sum := sha256.Sum256(dl.Body)
		key := fmt.Sprintf("%s/%s.%s", res.ExternalID, hex.EncodeToString(sum[:8]), format.fileExtension())
		contentType := dl.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		uri, archiveErr := d.Archive.Save(ctx, key, contentType, dl.Body)
		if archiveErr != nil {
			d.Logger.Warn("archive download failed",
				zap.String("resource", res.Title),
				zap.Error(archiveErr),
			)
		} else {
			d.Logger.Debug("download archived", zap.String("uri", uri))
		}
	}

	return dl, nil
}
