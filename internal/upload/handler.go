package upload

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lazarus/tiss-importer/internal/importer"
	"github.com/lazarus/tiss-importer/internal/tiss"
)

// Importer runs the import saga over a batch of parsed guides.
type Importer interface {
	ImportAll(ctx context.Context, records []tiss.GuideRecord) []importer.Result
}

// Handler is the HTTP front door: one multipart upload endpoint accepting a
// single XML bundle or a ZIP of bundles, plus a health endpoint.
type Handler struct {
	parser     *tiss.Parser
	importer   Importer
	syncImport bool
	logger     zerolog.Logger
}

// NewHandler builds the upload handler. With syncImport the request blocks
// until every guide is imported and the response carries the per-guide
// results; otherwise the response acknowledges immediately with the guide
// numbers found and imports run in the background.
func NewHandler(parser *tiss.Parser, imp Importer, syncImport bool, logger zerolog.Logger) *Handler {
	return &Handler{parser: parser, importer: imp, syncImport: syncImport, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/upload", h.Upload)
	g.GET("/health", h.HealthCheck)
}

func (h *Handler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "tiss-importer",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type document struct {
	name string
	data []byte
}

func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no file sent"})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable upload"})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable upload"})
	}

	docs, err := extractDocuments(fh.Filename, fh.Header.Get("Content-Type"), data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	// Parse everything up front: the response needs the guide numbers either
	// way, and a bundle that fails to parse is skipped with a log line, never
	// a failed upload.
	var batches [][]tiss.GuideRecord
	var guideNumbers []string
	for _, doc := range docs {
		records, err := h.parser.Parse(doc.data)
		if err != nil {
			h.logger.Error().Err(err).Str("file", doc.name).Msg("parsing bundle failed, skipping")
			continue
		}
		if len(records) == 0 {
			continue
		}
		for _, rec := range records {
			if rec.ProviderGuideNumber != "" {
				guideNumbers = append(guideNumbers, rec.ProviderGuideNumber)
			}
		}
		batches = append(batches, records)
	}

	if h.syncImport {
		var results []importer.Result
		for _, records := range batches {
			results = append(results, h.importer.ImportAll(c.Request().Context(), records)...)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"guias":   guideNumbers,
			"results": results,
		})
	}

	go h.importBatches(batches)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    fmt.Sprintf("arquivo recebido, %d guia(s) em processamento", len(guideNumbers)),
		"guias":      guideNumbers,
		"totalGuias": len(guideNumbers),
		"status":     "PROCESSANDO",
	})
}

func (h *Handler) importBatches(batches [][]tiss.GuideRecord) {
	// Detached from the request: the ack already went out.
	ctx := context.Background()
	for _, records := range batches {
		results := h.importer.ImportAll(ctx, records)
		for _, res := range results {
			if res.Success {
				h.logger.Info().Str("guide_number", res.ProviderGuideNumber).Str("guide_id", res.GuideID).Msg("guide processed")
			} else {
				h.logger.Warn().Str("guide_number", res.ProviderGuideNumber).Str("error", res.Error).Msg("guide not processed")
			}
		}
	}
}

// extractDocuments pulls the XML bundles out of the upload: every .xml entry
// of a ZIP, or the body itself for a plain XML file.
func extractDocuments(filename, contentType string, data []byte) ([]document, error) {
	lower := strings.ToLower(filename)
	switch {
	case contentType == "application/zip" || strings.HasSuffix(lower, ".zip"):
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("invalid zip archive")
		}
		var docs []document
		for _, entry := range zr.File {
			if !strings.HasSuffix(strings.ToLower(entry.Name), ".xml") {
				continue
			}
			rc, err := entry.Open()
			if err != nil {
				return nil, fmt.Errorf("read zip entry %s: %w", entry.Name, err)
			}
			content, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("read zip entry %s: %w", entry.Name, err)
			}
			docs = append(docs, document{name: entry.Name, data: normalizeEncoding(content)})
		}
		if len(docs) == 0 {
			return nil, fmt.Errorf("no xml files in zip")
		}
		return docs, nil
	case contentType == "application/xml" || contentType == "text/xml" || strings.HasSuffix(lower, ".xml"):
		return []document{{name: filename, data: normalizeEncoding(data)}}, nil
	default:
		return nil, fmt.Errorf("unsupported file type, send .zip or .xml")
	}
}

var encodingDecl = regexp.MustCompile(`encoding=["']([^"']+)["']`)

// normalizeEncoding re-decodes ISO-8859-1 declared bundles to UTF-8 so the
// XML decoder sees valid byte sequences.
func normalizeEncoding(data []byte) []byte {
	head := data
	if len(head) > 256 {
		head = head[:256]
	}
	m := encodingDecl.FindSubmatch(head)
	if m == nil || !strings.Contains(strings.ToLower(string(m[1])), "iso-8859") {
		return data
	}
	var buf bytes.Buffer
	buf.Grow(len(data))
	for _, b := range data {
		buf.WriteRune(rune(b))
	}
	return buf.Bytes()
}
