package service

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
	"github.com/BrandonDHaskell/docbeacon/internal/validation"
)

//go:embed templates/document.html.tmpl
var templatesFS embed.FS

const defaultRecipient = "Client"

// DocumentService renders trackable HTML documents.
type DocumentService struct {
	tmpl  *template.Template
	title string
	now   func() time.Time
	newID func() string
}

type DocumentOptions struct {
	// Title is the heading shown on every document. Default: "Document".
	Title string
	Now   func() time.Time
}

func NewDocumentService(opts DocumentOptions) (*DocumentService, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/document.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse document template: %w", err)
	}
	if opts.Title == "" {
		opts.Title = "Document"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DocumentService{
		tmpl:  tmpl,
		title: opts.Title,
		now:   opts.Now,
		newID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:8] },
	}, nil
}

type documentView struct {
	Title          string
	DocumentID     string
	RecipientLabel string
	TrackingURL    string
	Paragraphs     []string
}

// Create validates req, fills in defaults and renders the document.
// baseURL is the externally reachable origin, e.g. https://track.example.com.
func (s *DocumentService) Create(req types.CreateDocumentRequest, baseURL string) (types.CreateDocumentResponse, error) {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.RecipientLabel = strings.TrimSpace(req.RecipientLabel)

	if verr := validation.ValidateStruct(&req); verr != nil {
		if verr.Has("content", "required") {
			return types.CreateDocumentResponse{}, fmt.Errorf("%w: %s", ErrContentRequired, verr.Error())
		}
		return types.CreateDocumentResponse{}, fmt.Errorf("%w: %s", ErrInvalidRequest, verr.Error())
	}
	if strings.TrimSpace(req.Content) == "" {
		return types.CreateDocumentResponse{}, ErrContentRequired
	}

	if req.DocumentID == "" {
		req.DocumentID = "DOC_" + s.now().UTC().Format("20060102_150405") + "_" + s.newID()
	}
	if req.RecipientLabel == "" {
		req.RecipientLabel = defaultRecipient
	}

	trackingURL := TrackingURL(baseURL, req.DocumentID, req.RecipientLabel)

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, documentView{
		Title:          s.title,
		DocumentID:     req.DocumentID,
		RecipientLabel: req.RecipientLabel,
		TrackingURL:    trackingURL,
		Paragraphs:     paragraphs(req.Content),
	}); err != nil {
		return types.CreateDocumentResponse{}, fmt.Errorf("render document: %w", err)
	}

	return types.CreateDocumentResponse{
		Success:          true,
		DocumentID:       req.DocumentID,
		RecipientLabel:   req.RecipientLabel,
		HTMLContent:      buf.String(),
		TrackingURL:      trackingURL,
		DownloadFilename: req.DocumentID + "_" + req.RecipientLabel + ".html",
	}, nil
}

// TrackingURL builds the pixel/GPS endpoint for a document and recipient.
func TrackingURL(baseURL, documentID, recipient string) string {
	return strings.TrimRight(baseURL, "/") + "/track/" + url.PathEscape(documentID) + "/" + url.PathEscape(recipient)
}

// paragraphs splits content on blank lines.
func paragraphs(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
