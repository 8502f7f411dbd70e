package extraction

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labflow/internal/providers"
	"labflow/internal/util"
)

const labText = "City Diagnostics\nPatient: Asha Rao  Age: 34  F\nHemoglobin 11.9 g/dL (12-16)\nWBC 7.2 10^3/uL (4-11)\nPlatelets 250 10^3/uL (150-400)"

func TestRoute(t *testing.T) {
	cases := map[string]Kind{
		"application/pdf":                 KindPDF,
		"application/pdf; charset=binary": KindPDF,
		"image/png":                       KindImage,
		"IMAGE/JPEG":                      KindImage,
	}
	for mt, want := range cases {
		got, err := Route(mt)
		require.NoError(t, err, mt)
		assert.Equal(t, want, got, mt)
	}
	for _, mt := range []string{"text/plain", "application/msword", ""} {
		_, err := Route(mt)
		assert.ErrorIs(t, err, util.ErrUnsupportedFileType, mt)
	}
}

func TestExtractUnsupportedMakesNoCall(t *testing.T) {
	mock := providers.NewMockProvider("openai", providers.MockReply{Text: labText})
	c := New("openai", mock, Options{})
	_, err := c.Extract(context.Background(), Request{Data: []byte("hi"), MIMEType: "text/csv", FileName: "a.csv"})
	require.ErrorIs(t, err, util.ErrUnsupportedFileType)
	assert.Equal(t, 0, mock.Calls())
}

func TestExtractImageSendsOneVisionCall(t *testing.T) {
	mock := providers.NewMockProvider("openai", providers.MockReply{Text: labText})
	c := New("openai", mock, Options{})
	doc, err := c.Extract(context.Background(), Request{
		Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg", FileName: "scan.jpg", Model: "gpt-4o-mini", FileID: "f1",
	})
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Hemoglobin 11.9 g/dL (12-16)")
	assert.Equal(t, "gpt-4o-mini", doc.Model)
	assert.Equal(t, "openai", doc.Provider)
	assert.False(t, doc.LowContent)

	require.Equal(t, 1, mock.Calls())
	req := mock.Requests()[0]
	require.Len(t, req.Attachments, 1)
	assert.True(t, req.Attachments[0].IsImage())
	assert.Equal(t, "extract_image", req.Operation)
	assert.Equal(t, "f1", req.FileID)
}

func TestExtractPDFUsesDocumentPath(t *testing.T) {
	mock := providers.NewMockProvider("anthropic", providers.MockReply{Text: labText})
	c := New("anthropic", mock, Options{})
	_, err := c.Extract(context.Background(), Request{Data: []byte("%PDF-1.4 not really"), MIMEType: "application/pdf", FileName: "r.pdf"})
	require.NoError(t, err)
	req := mock.Requests()[0]
	assert.Equal(t, "extract_pdf", req.Operation)
	assert.Equal(t, "application/pdf", req.Attachments[0].MIMEType)
}

func TestExtractHardFloor(t *testing.T) {
	mock := providers.NewMockProvider("openai", providers.MockReply{Text: "  blank page \x00 "})
	c := New("openai", mock, Options{MinChars: 20, WarnChars: 100})
	_, err := c.Extract(context.Background(), Request{Data: []byte{1}, MIMEType: "image/png", FileName: "x.png"})
	require.ErrorIs(t, err, util.ErrInsufficientExtraction)
}

func TestExtractSoftFloorWarnsOnly(t *testing.T) {
	text := strings.Repeat("a", 50)
	mock := providers.NewMockProvider("openai", providers.MockReply{Text: text})
	c := New("openai", mock, Options{MinChars: 20, WarnChars: 100})
	doc, err := c.Extract(context.Background(), Request{Data: []byte{1}, MIMEType: "image/png", FileName: "x.png"})
	require.NoError(t, err)
	assert.True(t, doc.LowContent)
	assert.Len(t, doc.Text, 50)
}

func TestExtractProviderFailure(t *testing.T) {
	mock := providers.NewMockProvider("openai", providers.MockReply{Err: &providers.HTTPError{Provider: "openai", Status: 503, Body: "down"}})
	c := New("openai", mock, Options{})
	_, err := c.Extract(context.Background(), Request{Data: []byte{1}, MIMEType: "image/png", FileName: "x.png"})
	require.ErrorIs(t, err, util.ErrProviderUnavailable)
}

func TestTextLayerToleratesGarbage(t *testing.T) {
	mock := providers.NewMockProvider("openai", providers.MockReply{Text: labText})
	c := New("openai", mock, Options{PDFTextLayer: true})
	doc, err := c.Extract(context.Background(), Request{Data: []byte("garbage"), MIMEType: "application/pdf", FileName: "g.pdf", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", doc.Model)
	assert.Equal(t, 1, mock.Calls())
}
