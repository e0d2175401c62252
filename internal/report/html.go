package report

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"time"

	"surveydesk/m/domain"
)

// Renderer produces the printable HTML views the PDF printer navigates to.
type Renderer struct {
	sales *template.Template
}

// NewRenderer parses the report templates from dir.
func NewRenderer(dir string) (*Renderer, error) {
	tmpl, err := template.ParseFiles(filepath.Join(dir, "sales_report.html"))
	if err != nil {
		return nil, fmt.Errorf("parse sales report template: %w", err)
	}
	return &Renderer{sales: tmpl}, nil
}

type salesReportData struct {
	GeneratedAt string
	Sales       []domain.Sale
	Total       float64
}

// RenderSales writes the printable sales report.
func (r *Renderer) RenderSales(w io.Writer, sales []domain.Sale) error {
	var total float64
	for _, sale := range sales {
		total += sale.TotalCost
	}
	data := salesReportData{
		GeneratedAt: time.Now().Format("2006-01-02 15:04"),
		Sales:       sales,
		Total:       total,
	}
	if err := r.sales.Execute(w, data); err != nil {
		return fmt.Errorf("render sales report: %w", err)
	}
	return nil
}
