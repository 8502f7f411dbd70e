package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"labflow/internal/models"
	"labflow/internal/providers"
	"labflow/internal/util"
)

const (
	DefaultMinChars  = 20
	DefaultWarnChars = 100

	textLayerModel = "pdf-text-layer"
)

type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// Route picks the extraction path for a MIME type.
func Route(mimeType string) (Kind, error) {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch {
	case mt == "application/pdf":
		return KindPDF, nil
	case strings.HasPrefix(mt, "image/"):
		return KindImage, nil
	default:
		return "", fmt.Errorf("%w: %q", util.ErrUnsupportedFileType, mimeType)
	}
}

type Options struct {
	MinChars     int
	WarnChars    int
	PDFTextLayer bool
	Logger       *slog.Logger
}

type Request struct {
	Data      []byte
	MIMEType  string
	FileName  string
	Model     string
	FileID    string
	SessionID string
}

// Client turns file bytes into plain text using one vendor's vision/document capability.
type Client struct {
	provider  string
	completer providers.Completer
	opts      Options
	logger    *slog.Logger
}

func New(provider string, completer providers.Completer, opts Options) *Client {
	if opts.MinChars <= 0 {
		opts.MinChars = DefaultMinChars
	}
	if opts.WarnChars < opts.MinChars {
		opts.WarnChars = DefaultWarnChars
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: provider, completer: completer, opts: opts, logger: logger.With("provider", provider)}
}

func (c *Client) Extract(ctx context.Context, req Request) (models.ExtractedDocument, error) {
	kind, err := Route(req.MIMEType)
	if err != nil {
		return models.ExtractedDocument{}, err
	}
	log := c.logger.With("file_id", req.FileID, "file_name", req.FileName, "kind", kind, "model", req.Model)

	doc := models.ExtractedDocument{Provider: c.provider, Model: req.Model}
	if kind == KindPDF {
		doc.PageCount = pageCount(req.Data, log)
		if c.opts.PDFTextLayer {
			if text := textLayer(req.Data, log); utf8.RuneCountInString(text) >= c.opts.WarnChars {
				doc.Text = text
				doc.Model = textLayerModel
				log.Info("using embedded pdf text layer", "chars", utf8.RuneCountInString(text))
				return doc, nil
			}
		}
	}

	mimeType := req.MIMEType
	if kind == KindPDF {
		mimeType = "application/pdf"
	}
	resp, info, err := c.completer.Complete(ctx, providers.CompletionRequest{
		Operation: "extract_" + string(kind),
		Model:     req.Model,
		System:    extractionSystemPrompt,
		Prompt:    extractionPrompt,
		Attachments: []providers.Attachment{{
			MIMEType: mimeType,
			FileName: req.FileName,
			Data:     req.Data,
		}},
		MaxTokens: 4096,
		FileID:    req.FileID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return models.ExtractedDocument{}, fmt.Errorf("extract %s: %w", req.FileName, err)
	}
	if info.Model != "" {
		doc.Model = info.Model
	}

	doc.Text = util.SanitizeText(resp.Text)
	n := utf8.RuneCountInString(doc.Text)
	if n < c.opts.MinChars {
		return models.ExtractedDocument{}, fmt.Errorf("%w: %d chars from %s (need %d)", util.ErrInsufficientExtraction, n, req.FileName, c.opts.MinChars)
	}
	if n < c.opts.WarnChars {
		doc.LowContent = true
		log.Warn("extracted text is short", "chars", n)
	}
	log.Debug("extracted text", "chars", n, "pages", doc.PageCount)
	return doc, nil
}

func textLayer(data []byte, log *slog.Logger) (text string) {
	defer func() {
		// the pdf reader panics on some malformed xref tables
		if r := recover(); r != nil {
			log.Warn("pdf text layer read panicked", "panic", r)
			text = ""
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Debug("open pdf text layer", "error", err)
		return ""
	}
	reader, err := r.GetPlainText()
	if err != nil {
		log.Debug("extract pdf text layer", "error", err)
		return ""
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return ""
	}
	return util.SanitizeText(buf.String())
}

func pageCount(data []byte, log *slog.Logger) (n int) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("pdf page count panicked", "panic", r)
			n = 0
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	count, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		log.Debug("count pdf pages", "error", err)
		return 0
	}
	return count
}
