package tracer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
)

const (
	defaultReportTitle  = "Financial Report"
	defaultReportAuthor = "Xeenaps User"
)

// Transaction is a ledger line as sent to the PDF engine.
type Transaction struct {
	store.FinanceItem
	Balance float64 `json:"balance"`
	Links   string  `json:"links"`
}

// ExportPayload is the body of a finance export request.
type ExportPayload struct {
	Transactions   []Transaction `json:"transactions"`
	ProjectTitle   string        `json:"projectTitle"`
	ProjectAuthors string        `json:"projectAuthors"`
	Currency       string        `json:"currency"`
}

// Export is a rendered ledger.
type Export struct {
	Filename string
	PDF      []byte
}

var entryDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func entryTime(s string) time.Time {
	for _, layout := range entryDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// BuildLedger orders entries by date and computes the running balance
// (credit minus debit) and the attachment links of each line.
func BuildLedger(items []store.FinanceItem) []Transaction {
	sorted := append([]store.FinanceItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return entryTime(sorted[i].Date).Before(entryTime(sorted[j].Date))
	})

	out := make([]Transaction, 0, len(sorted))
	balance := 0.0
	for _, it := range sorted {
		balance += it.Credit - it.Debit
		out = append(out, Transaction{FinanceItem: it, Balance: balance, Links: attachmentLinks(it.Attachments)})
	}
	return out
}

func attachmentLinks(atts []store.Attachment) string {
	var urls []string
	for _, a := range atts {
		if link := a.Link(); link != "" {
			urls = append(urls, link)
		}
	}
	if len(urls) == 0 {
		return "-"
	}
	return strings.Join(urls, " | ")
}

// exportPayload assembles the request for a project. p may be nil when the
// project row is gone.
func exportPayload(p *store.Project, items []store.FinanceItem, currency string) ExportPayload {
	authors := defaultReportAuthor
	if p != nil && len(p.Authors) > 0 {
		authors = strings.Join(p.Authors, ", ")
	}
	return ExportPayload{
		Transactions:   BuildLedger(items),
		ProjectTitle:   p.DisplayTitle(defaultReportTitle),
		ProjectAuthors: authors,
		Currency:       currency,
	}
}

// ExportFinance renders a project's whole ledger to PDF through the
// gateway's PDF engine. The returned document has been validated.
func (s *Service) ExportFinance(ctx context.Context, projectID, currency string) (*Export, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("no PDF renderer configured: %w", util.ErrInvalidConfig)
	}
	start := s.now()

	items, err := s.store.FetchFinance(ctx, projectID, store.FinanceFilter{})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no finance entries for project %s: %w", projectID, util.ErrNotFound)
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	payload := exportPayload(project, items, currency)
	exp, err := s.render(ctx, payload)
	filename := ""
	if exp != nil {
		filename = exp.Filename
	}
	s.events.LogExport(projectID, filename, len(items), s.now().Sub(start), err)
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *Service) render(ctx context.Context, payload ExportPayload) (*Export, error) {
	resp, err := s.renderer.Do(ctx, gateway.Request{Action: "generateFinanceExport", Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("finance export: %w", err)
	}
	if resp.Base64 == "" {
		return nil, fmt.Errorf("finance export returned no document: %w", util.ErrNotFound)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Base64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	if err := api.Validate(bytes.NewReader(data), model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("export is not a valid PDF: %w", err)
	}

	name := filepath.Base(resp.Filename)
	if name == "." || name == "/" || name == "" {
		name = "finance-report.pdf"
	}
	return &Export{Filename: name, PDF: data}, nil
}

// WriteFile saves the export under dir and returns its path.
func (e *Export) WriteFile(dir string) (string, error) {
	path := filepath.Join(dir, e.Filename)
	if err := os.WriteFile(path, e.PDF, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
