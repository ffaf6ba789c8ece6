package connectors

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go-datasync/internal/syncerr"
)

const csvSampleRows = 100

// CSVConnector reads every *.csv file of a directory as one dataset.
//
// Config keys: "path" (directory, required), "delimiter" (single character, default ",").
// CSV carries no types, so every field reports remote type "string" and is
// nullable; the suggested local type is inferred from a sample of rows. Empty
// cells are read as null.
type CSVConnector struct{}

func NewCSVConnector() *CSVConnector {
	return &CSVConnector{}
}

func (c *CSVConnector) Type() string { return "csv" }

func (c *CSVConnector) TestConnection(ctx context.Context, config map[string]interface{}) error {
	dir, err := csvDir(config)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return syncerr.Configuration("csv path %s is not a directory", dir)
	}
	return nil
}

func (c *CSVConnector) ListDatasets(ctx context.Context, config map[string]interface{}) ([]DatasetDescriptor, error) {
	dir, err := csvDir(config)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list csv files: %w", err)
	}
	sort.Strings(matches)

	datasets := make([]DatasetDescriptor, 0, len(matches))
	for _, m := range matches {
		datasets = append(datasets, DatasetDescriptor{
			Identifier: strings.TrimSuffix(filepath.Base(m), ".csv"),
			Kind:       "file",
		})
	}
	return datasets, nil
}

func (c *CSVConnector) InferSchema(ctx context.Context, dataset string, config map[string]interface{}) (*RemoteSchema, error) {
	f, reader, headers, err := c.open(dataset, config)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples := make([][]string, len(headers))
	for i := 0; i < csvSampleRows; i++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		for j := range headers {
			samples[j] = append(samples[j], rec[j])
		}
	}

	schema := &RemoteSchema{Dataset: dataset, Fields: make([]RemoteField, 0, len(headers))}
	for i, h := range headers {
		schema.Fields = append(schema.Fields, RemoteField{
			Name:               h,
			RemoteType:         "string",
			Nullable:           true,
			SuggestedLocalType: inferLocalType(samples[i]),
		})
	}
	return schema, nil
}

func (c *CSVConnector) StreamRows(ctx context.Context, dataset string, config map[string]interface{}) (RowStream, error) {
	f, reader, headers, err := c.open(dataset, config)
	if err != nil {
		return nil, err
	}
	return &csvStream{file: f, reader: reader, headers: headers}, nil
}

// StreamRowsWithCheckpoint buffers the rows after from and serves them sorted
// by watermark and tie-breaker.
func (c *CSVConnector) StreamRowsWithCheckpoint(ctx context.Context, dataset string, config map[string]interface{}, from *Watermark, opts CheckpointOptions) (CheckpointStream, error) {
	if opts.WatermarkColumn == "" {
		return nil, syncerr.Configuration("watermark column is required")
	}

	stream, err := c.StreamRows(ctx, dataset, config)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var rows []Row
	for {
		row, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, ok := row[opts.WatermarkColumn]; !ok {
			return nil, syncerr.Configuration("watermark column %q not found in %s", opts.WatermarkColumn, dataset)
		}
		if After(row, from, opts) {
			rows = append(rows, row)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		c := CompareValues(rows[i][opts.WatermarkColumn], rows[j][opts.WatermarkColumn])
		if c != 0 || opts.TieBreakerColumn == "" {
			return c < 0
		}
		return CompareValues(rows[i][opts.TieBreakerColumn], rows[j][opts.TieBreakerColumn]) < 0
	})

	return NewWatermarkStream(NewSliceStream(rows), from, opts), nil
}

func (c *CSVConnector) ListIdentities(ctx context.Context, dataset string, config map[string]interface{}, columns []string) (IdentityStream, error) {
	stream, err := c.StreamRows(ctx, dataset, config)
	if err != nil {
		return nil, err
	}
	return IdentitiesFromRows(stream, columns), nil
}

func (c *CSVConnector) open(dataset string, config map[string]interface{}) (*os.File, *csv.Reader, []string, error) {
	dir, err := csvDir(config)
	if err != nil {
		return nil, nil, nil, err
	}
	if strings.ContainsAny(dataset, `/\`) {
		return nil, nil, nil, syncerr.Configuration("invalid dataset name %q", dataset)
	}

	f, err := os.Open(filepath.Join(dir, dataset+".csv"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open dataset %s: %w", dataset, err)
	}

	reader := csv.NewReader(f)
	if d, ok := config["delimiter"].(string); ok && d != "" {
		reader.Comma = []rune(d)[0]
	}

	headers, err := reader.Read()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	return f, reader, headers, nil
}

func csvDir(config map[string]interface{}) (string, error) {
	dir, _ := config["path"].(string)
	if dir == "" {
		return "", syncerr.Configuration("csv connector requires a path")
	}
	return dir, nil
}

type csvStream struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
}

func (s *csvStream) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV row: %w", err)
	}

	row := make(Row, len(s.headers))
	for i, h := range s.headers {
		if rec[i] == "" {
			row[h] = nil
			continue
		}
		row[h] = rec[i]
	}
	return row, nil
}

func (s *csvStream) Close() error {
	return s.file.Close()
}
