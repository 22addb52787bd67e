// Package persistence stores execution records in files, MongoDB or Kafka.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

const (
	indent = "    " // Default indentation for JSON output (4 spaces)
	prefix = ""     // Default prefix for JSON output
)

// Sink stores one execution record.
type Sink interface {
	Store(ctx context.Context, rec dm.Record) error
}

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(filename string, data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	return json.MarshalIndent(data, s.Prefix, s.Indent)
}

type FileWriter struct {
	Overwrite bool
}

func (w FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// WriteJSONToFile persists data as JSON to a destination using the provided Serializer and Writer.
func WriteJSONToFile(data any, filename string, serializer Serializer, writer Writer) error {
	if filename == "" {
		return fmt.Errorf("invalid filename: %w", os.ErrInvalid)
	}

	bytes, err := serializer.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := writer.Write(filename, bytes); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}

// WriteJSON persists data as JSON to a file with default settings (overwrite enabled, 4-space indent).
func WriteJSON(data any, filename string) error {
	serializer := JSONSerializer{Prefix: prefix, Indent: indent}
	writer := FileWriter{Overwrite: true}
	return WriteJSONToFile(data, filename, serializer, writer)
}

// FileSink writes every record to <Dir>/<exuid>.json.
type FileSink struct {
	Dir        string
	Serializer Serializer
	Writer     Writer
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{
		Dir:        dir,
		Serializer: JSONSerializer{Prefix: prefix, Indent: indent},
		Writer:     FileWriter{Overwrite: false},
	}
}

func (s *FileSink) Store(_ context.Context, rec dm.Record) error {
	filename := filepath.Join(s.Dir, rec.ExecutionUID.String()+".json")
	return WriteJSONToFile(rec, filename, s.Serializer, s.Writer)
}

// Multi stores each record in every sink and joins the errors.
type Multi []Sink

func (m Multi) Store(ctx context.Context, rec dm.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Store(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
