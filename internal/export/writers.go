// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/tomtom215/proxywatch/internal/bandwidth"
	"github.com/tomtom215/proxywatch/internal/models"
)

// writeReport encodes rep in the given format.
func writeReport(w io.Writer, t models.ExportType, rep Report) error {
	switch t {
	case models.ExportCSV:
		return writeCSV(w, rep)
	case models.ExportJSON:
		return writeJSON(w, rep)
	case models.ExportPDF:
		return writePDF(w, rep)
	case models.ExportExcel:
		return writeExcel(w, rep)
	default:
		return fmt.Errorf("unsupported export type %q", t)
	}
}

// writeCSV writes each table as a section: a "# name" line, the header and
// the rows, separated by blank lines.
func writeCSV(w io.Writer, rep Report) error {
	writer := csv.NewWriter(w)

	if rep.Estimated {
		if err := writer.Write([]string{"# Estimated data: the metrics API was unavailable for at least one proxy"}); err != nil {
			return err
		}
	}
	for i, t := range rep.Tables {
		if i > 0 {
			if err := writer.Write([]string{""}); err != nil {
				return err
			}
		}
		if err := writer.Write([]string{"# " + t.Name}); err != nil {
			return err
		}
		if err := writer.Write(t.Header); err != nil {
			return err
		}
		for _, row := range t.Rows {
			record := make([]string, len(row))
			for j, cell := range row {
				record[j] = cellString(cell)
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

type jsonSample struct {
	Timestamp        int64   `json:"timestamp"`
	BytesTransferred int64   `json:"bytesTransferred"`
	Mbps             float64 `json:"mbps"`
}

type jsonProxy struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Region      string           `json:"region,omitempty"`
	Category    string           `json:"category,omitempty"`
	Estimated   bool             `json:"estimated"`
	Usage       *jsonUsage       `json:"usage,omitempty"`
	Performance *jsonPerformance `json:"performance,omitempty"`
	Costs       *jsonCosts       `json:"costs,omitempty"`
	Samples     []jsonSample     `json:"samples,omitempty"`
}

type jsonUsage struct {
	TotalBytes   int64   `json:"totalBytes"`
	Total        string  `json:"total"`
	AverageBytes float64 `json:"averageBytes"`
	PeakBytes    int64   `json:"peakBytes"`
	Samples      int     `json:"samples"`
}

type jsonPerformance struct {
	IntervalSeconds float64 `json:"intervalSeconds"`
	AverageMbps     float64 `json:"averageMbps"`
	PeakMbps        float64 `json:"peakMbps"`
}

type jsonCosts struct {
	TotalGB   float64 `json:"totalGb"`
	CostPerGB float64 `json:"costPerGb"`
	Cost      float64 `json:"cost"`
}

type jsonDocument struct {
	Name        string                `json:"name"`
	Range       string                `json:"range"`
	DataType    models.ExportDataType `json:"dataType"`
	GeneratedAt time.Time             `json:"generatedAt"`
	Estimated   bool                  `json:"estimated"`
	Proxies     []jsonProxy           `json:"proxies"`
}

func writeJSON(w io.Writer, rep Report) error {
	doc := jsonDocument{
		Name:        rep.Title,
		Range:       rep.Range,
		DataType:    rep.DataType,
		GeneratedAt: rep.GeneratedAt,
		Estimated:   rep.Estimated,
		Proxies:     make([]jsonProxy, 0, len(rep.Series)),
	}

	for _, s := range rep.Series {
		p := jsonProxy{
			ID: s.Proxy.ID, Name: s.Proxy.Name, Region: s.Proxy.Region, Category: s.Proxy.Category,
			Estimated: s.Fallback,
		}
		if includes(rep.DataType, models.DataUsage) {
			p.Usage = &jsonUsage{
				TotalBytes:   s.Stats.Total,
				Total:        bandwidth.FormatBytes(s.Stats.Total),
				AverageBytes: round(s.Stats.Average, 0),
				PeakBytes:    s.Stats.Peak,
				Samples:      s.Stats.Count,
			}
		}
		if includes(rep.DataType, models.DataPerformance) {
			p.Performance = &jsonPerformance{
				IntervalSeconds: s.Interval.Seconds(),
				AverageMbps:     round(bandwidth.Mbps(int64(s.Stats.Average), s.Interval), 3),
				PeakMbps:        round(bandwidth.Mbps(s.Stats.Peak, s.Interval), 3),
			}
		}
		if includes(rep.DataType, models.DataCosts) {
			gb := bandwidth.Gigabytes(s.Stats.Total)
			p.Costs = &jsonCosts{TotalGB: round(gb, 3), CostPerGB: s.Proxy.CostPerGB, Cost: round(gb*s.Proxy.CostPerGB, 2)}
		}
		if rep.RawData {
			p.Samples = make([]jsonSample, len(s.Samples))
			for i, sample := range s.Samples {
				p.Samples[i] = jsonSample{
					Timestamp:        sample.Timestamp,
					BytesTransferred: sample.BytesTransferred,
					Mbps:             round(bandwidth.Mbps(sample.BytesTransferred, s.Interval), 3),
				}
			}
		}
		doc.Proxies = append(doc.Proxies, p)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

var (
	pdfHeaderColor = [3]int{59, 130, 246}
	pdfTitleColor  = [3]int{31, 41, 55}
	pdfBodyColor   = [3]int{55, 65, 81}
	pdfLineColor   = [3]int{229, 231, 235}
)

func writePDF(w io.Writer, rep Report) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, tr("Generated "+rep.GeneratedAt.Format(time.RFC1123)), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFillColor(pdfHeaderColor[0], pdfHeaderColor[1], pdfHeaderColor[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 12, tr("  "+rep.Title), "", 1, "L", true, 0, "")
	pdf.SetTextColor(pdfBodyColor[0], pdfBodyColor[1], pdfBodyColor[2])
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 8, tr("Range: "+rep.Range), "", 1, "L", false, 0, "")
	if rep.Estimated {
		pdf.SetTextColor(192, 0, 0)
		pdf.CellFormat(0, 8, "Estimated data: the metrics API was unavailable for at least one proxy.", "", 1, "L", false, 0, "")
		pdf.SetTextColor(pdfBodyColor[0], pdfBodyColor[1], pdfBodyColor[2])
	}
	pdf.Ln(4)

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageWidth - left - right

	for _, t := range rep.Tables {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetTextColor(pdfTitleColor[0], pdfTitleColor[1], pdfTitleColor[2])
		pdf.Cell(0, 8, tr(t.Name))
		pdf.Ln(8)
		pdf.SetDrawColor(pdfLineColor[0], pdfLineColor[1], pdfLineColor[2])
		pdf.Line(pdf.GetX(), pdf.GetY(), pdf.GetX()+usable, pdf.GetY())
		pdf.Ln(2)

		colWidth := usable / float64(len(t.Header))
		pdf.SetFont("Arial", "B", 9)
		pdf.SetTextColor(pdfBodyColor[0], pdfBodyColor[1], pdfBodyColor[2])
		for _, h := range t.Header {
			pdf.CellFormat(colWidth, 7, tr(h), "B", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for i, row := range t.Rows {
			fill := i%2 == 1
			pdf.SetFillColor(245, 245, 245)
			for _, cell := range row {
				pdf.CellFormat(colWidth, 6, tr(cellString(cell)), "", 0, "L", fill, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(6)
	}

	for i, c := range rep.Charts {
		name := fmt.Sprintf("chart-%d", i)
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(c.PNG))
		if pdf.GetY() > 120 {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 8, tr(c.Title))
		pdf.Ln(9)
		pdf.ImageOptions(name, left, pdf.GetY(), usable, 0, true, opts, 0, "")
		pdf.Ln(4)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	return pdf.Output(w)
}

func writeExcel(w io.Writer, rep Report) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	first := true
	for _, t := range rep.Tables {
		if first {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return err
			}
			first = false
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return err
		}

		header := make([]any, len(t.Header))
		for i, h := range t.Header {
			header[i] = h
		}
		if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
			return err
		}
		for i, row := range t.Rows {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			values := row
			if err := f.SetSheetRow(t.Name, cell, &values); err != nil {
				return err
			}
		}
	}

	if len(rep.Charts) > 0 {
		const sheet = "Charts"
		if first {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
			first = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		for i, c := range rep.Charts {
			titleCell, _ := excelize.CoordinatesToCellName(1, i*18+1)
			if err := f.SetCellValue(sheet, titleCell, c.Title); err != nil {
				return err
			}
			picCell, _ := excelize.CoordinatesToCellName(1, i*18+2)
			if err := f.AddPictureFromBytes(sheet, picCell, &excelize.Picture{
				Extension: ".png",
				File:      c.PNG,
				Format:    &excelize.GraphicOptions{AltText: c.Title},
			}); err != nil {
				return fmt.Errorf("add chart picture: %w", err)
			}
		}
	}

	if rep.Estimated {
		if _, err := f.NewSheet("Notes"); err != nil {
			return err
		}
		if err := f.SetCellValue("Notes", "A1", "Estimated data: the metrics API was unavailable for at least one proxy."); err != nil {
			return err
		}
	}

	if first {
		// nothing to write; keep an empty sheet so the workbook opens
		if err := f.SetCellValue("Sheet1", "A1", "No data"); err != nil {
			return err
		}
	}

	return f.Write(w)
}
