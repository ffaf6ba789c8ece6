package connectors

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go-datasync/internal/syncerr"

	"github.com/xuri/excelize/v2"
)

const excelSampleRows = 100

// ExcelConnector exposes every sheet of an .xlsx workbook as a dataset. The
// first row of a sheet holds the column names.
//
// Config keys: "path" (workbook file, required). It supports plain streaming
// only; incremental strategies report a capability error against it.
type ExcelConnector struct{}

func NewExcelConnector() *ExcelConnector {
	return &ExcelConnector{}
}

func (c *ExcelConnector) Type() string { return "excel" }

func (c *ExcelConnector) TestConnection(ctx context.Context, config map[string]interface{}) error {
	f, err := openWorkbook(config)
	if err != nil {
		return err
	}
	return f.Close()
}

func (c *ExcelConnector) ListDatasets(ctx context.Context, config map[string]interface{}) ([]DatasetDescriptor, error) {
	f, err := openWorkbook(config)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	datasets := make([]DatasetDescriptor, 0, len(sheets))
	for _, s := range sheets {
		datasets = append(datasets, DatasetDescriptor{Identifier: s, Kind: "sheet"})
	}
	return datasets, nil
}

func (c *ExcelConnector) InferSchema(ctx context.Context, dataset string, config map[string]interface{}) (*RemoteSchema, error) {
	stream, err := c.open(dataset, config)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	samples := make([][]string, len(stream.headers))
	for i := 0; i < excelSampleRows; i++ {
		cells, err := stream.nextCells()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for j := range stream.headers {
			samples[j] = append(samples[j], cells[j])
		}
	}

	schema := &RemoteSchema{Dataset: dataset, Fields: make([]RemoteField, 0, len(stream.headers))}
	for i, h := range stream.headers {
		schema.Fields = append(schema.Fields, RemoteField{
			Name:               h,
			RemoteType:         "string",
			Nullable:           true,
			SuggestedLocalType: inferLocalType(samples[i]),
		})
	}
	return schema, nil
}

func (c *ExcelConnector) StreamRows(ctx context.Context, dataset string, config map[string]interface{}) (RowStream, error) {
	return c.open(dataset, config)
}

func (c *ExcelConnector) open(dataset string, config map[string]interface{}) (*excelStream, error) {
	f, err := openWorkbook(config)
	if err != nil {
		return nil, err
	}

	rows, err := f.Rows(dataset)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %s: %w", dataset, err)
	}

	s := &excelStream{file: f, rows: rows}
	headers, err := s.nextCells()
	if err == io.EOF {
		s.Close()
		return nil, fmt.Errorf("sheet %s is empty", dataset)
	}
	if err != nil {
		s.Close()
		return nil, err
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	s.headers = headers
	return s, nil
}

func openWorkbook(config map[string]interface{}) (*excelize.File, error) {
	path, _ := config["path"].(string)
	if path == "" {
		return nil, syncerr.Configuration("excel connector requires a path")
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	return f, nil
}

type excelStream struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
}

// nextCells returns the next row padded to the header width.
func (s *excelStream) nextCells() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, fmt.Errorf("failed to read Excel rows: %w", err)
		}
		return nil, io.EOF
	}
	cells, err := s.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel row: %w", err)
	}
	for len(cells) < len(s.headers) {
		cells = append(cells, "")
	}
	return cells, nil
}

func (s *excelStream) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cells, err := s.nextCells()
	if err != nil {
		return nil, err
	}

	row := make(Row, len(s.headers))
	for i, h := range s.headers {
		if cells[i] == "" {
			row[h] = nil
			continue
		}
		row[h] = cells[i]
	}
	return row, nil
}

func (s *excelStream) Close() error {
	s.rows.Close()
	return s.file.Close()
}
