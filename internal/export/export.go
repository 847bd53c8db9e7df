// Package export renders stored telemetry as CSV, XLSX or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vesaa/iotlinker/internal/models"
)

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
	JSON Format = "json"
)

const sheetName = "Telemetry"

var header = []string{"time", "device_id", "metric_name", "value", "unit", "quality_score"}

// ParseFormat accepts csv, xlsx (or excel) and json, case-insensitively.
// An empty string selects CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return CSV, nil
	case "xlsx", "excel":
		return XLSX, nil
	case "json":
		return JSON, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	switch f {
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case JSON:
		return "application/json"
	default:
		return "text/csv"
	}
}

// Filename builds the download name for a channel export.
func (f Format) Filename(channelName string, at time.Time) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, channelName)
	if base == "" {
		base = "channel"
	}
	return fmt.Sprintf("%s_%s.%s", base, at.UTC().Format("20060102T150405Z"), string(f))
}

// Write renders rows in format f.
func Write(w io.Writer, f Format, rows []models.DeviceData) error {
	switch f {
	case XLSX:
		return writeXLSX(w, rows)
	case JSON:
		return json.NewEncoder(w).Encode(rows)
	default:
		return writeCSV(w, rows)
	}
}

func record(r models.DeviceData) []string {
	unit := ""
	if r.Unit != nil {
		unit = *r.Unit
	}
	return []string{
		r.Time.UTC().Format(time.RFC3339Nano),
		r.DeviceID,
		r.MetricName,
		strconv.FormatFloat(r.Value, 'f', -1, 64),
		unit,
		strconv.Itoa(r.QualityScore),
	}
}

func writeCSV(w io.Writer, rows []models.DeviceData) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, rows []models.DeviceData) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	head := make([]interface{}, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &head); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		unit := ""
		if r.Unit != nil {
			unit = *r.Unit
		}
		values := []interface{}{
			r.Time.UTC().Format(time.RFC3339Nano), r.DeviceID, r.MetricName, r.Value, unit, r.QualityScore,
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
