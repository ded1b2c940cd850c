// Package currency holds the static name to short-code dictionary that backs
// every currency selector.
package currency

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dalfonso89/currency-trends-dashboard/internal/models"
)

// ErrMalformedLabel is returned when a label has no "(CODE)" part
var ErrMalformedLabel = errors.New("malformed currency label")

// ErrUnknownCurrency is returned for codes missing from the dictionary
var ErrUnknownCurrency = errors.New("unknown currency")

// Dictionary is read-only after load and safe for concurrent use.
type Dictionary struct {
	entries []models.CurrencyEntry
	byCode  map[string]int
}

// New builds a dictionary from entries, rejecting blanks and duplicate codes.
func New(entries []models.CurrencyEntry) (*Dictionary, error) {
	dictionary := &Dictionary{
		entries: make([]models.CurrencyEntry, 0, len(entries)),
		byCode:  make(map[string]int, len(entries)),
	}
	for i, entry := range entries {
		entry.Name = strings.TrimSpace(entry.Name)
		entry.ShortCode = strings.ToUpper(strings.TrimSpace(entry.ShortCode))
		if entry.Name == "" || entry.ShortCode == "" {
			return nil, fmt.Errorf("currency entry %d: name and short_code are required", i+1)
		}
		if _, exists := dictionary.byCode[entry.ShortCode]; exists {
			return nil, fmt.Errorf("currency entry %d: duplicate short_code %q", i+1, entry.ShortCode)
		}
		dictionary.byCode[entry.ShortCode] = len(dictionary.entries)
		dictionary.entries = append(dictionary.entries, entry)
	}
	return dictionary, nil
}

// LoadCSV reads a name,short_code CSV with a header row.
func LoadCSV(path string) (*Dictionary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open currency csv: %w", err)
	}
	defer file.Close()

	entries, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return New(entries)
}

// ReadCSV parses entries, locating the columns by header name.
func ReadCSV(reader io.Reader) ([]models.CurrencyEntry, error) {
	csvReader := csv.NewReader(reader)
	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("missing header row: %w", err)
	}

	nameColumn, codeColumn := -1, -1
	for i, column := range header {
		switch strings.TrimSpace(strings.TrimPrefix(column, "\ufeff")) {
		case "name":
			nameColumn = i
		case "short_code":
			codeColumn = i
		}
	}
	if nameColumn < 0 || codeColumn < 0 {
		return nil, errors.New("header must contain name and short_code")
	}

	var entries []models.CurrencyEntry
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.CurrencyEntry{
			Name:      record[nameColumn],
			ShortCode: record[codeColumn],
		})
	}
	return entries, nil
}

// WriteCSV writes entries in the format LoadCSV reads.
func WriteCSV(writer io.Writer, entries []models.CurrencyEntry) error {
	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.Write([]string{"name", "short_code"}); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := csvWriter.Write([]string{entry.Name, entry.ShortCode}); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// Label renders the selector string for an entry.
func Label(entry models.CurrencyEntry) string {
	return entry.Name + " (" + entry.ShortCode + ")"
}

// ParseLabel extracts the code between the first "(" and the next ")".
func ParseLabel(label string) (string, error) {
	open := strings.Index(label, "(")
	if open < 0 {
		return "", fmt.Errorf("%w: %q", ErrMalformedLabel, label)
	}
	closing := strings.Index(label[open+1:], ")")
	if closing < 0 {
		return "", fmt.Errorf("%w: %q", ErrMalformedLabel, label)
	}
	code := strings.TrimSpace(label[open+1 : open+1+closing])
	if code == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedLabel, label)
	}
	return code, nil
}

// Len returns the number of entries
func (dictionary *Dictionary) Len() int {
	return len(dictionary.entries)
}

// Entries returns a copy of the entries in load order
func (dictionary *Dictionary) Entries() []models.CurrencyEntry {
	return append([]models.CurrencyEntry(nil), dictionary.entries...)
}

// Lookup finds an entry by short code
func (dictionary *Dictionary) Lookup(code string) (models.CurrencyEntry, bool) {
	index, ok := dictionary.byCode[strings.ToUpper(code)]
	if !ok {
		return models.CurrencyEntry{}, false
	}
	return dictionary.entries[index], true
}

// LabelFor returns the label for a code, or the code itself when unknown.
func (dictionary *Dictionary) LabelFor(code string) string {
	if entry, ok := dictionary.Lookup(code); ok {
		return Label(entry)
	}
	return code
}

// Resolve accepts a short code or a label and returns a known short code.
func (dictionary *Dictionary) Resolve(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: empty value", ErrUnknownCurrency)
	}
	if entry, ok := dictionary.Lookup(value); ok {
		return entry.ShortCode, nil
	}
	code, err := ParseLabel(value)
	if err != nil {
		return "", err
	}
	entry, ok := dictionary.Lookup(code)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return entry.ShortCode, nil
}

// ResolveAll resolves values in order, dropping duplicates.
func (dictionary *Dictionary) ResolveAll(values []string) ([]string, error) {
	codes := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		code, err := dictionary.Resolve(value)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// Options returns selector options in load order.
func (dictionary *Dictionary) Options() []models.CurrencyOption {
	options := make([]models.CurrencyOption, len(dictionary.entries))
	for i, entry := range dictionary.entries {
		options[i] = models.CurrencyOption{Label: Label(entry), Code: entry.ShortCode}
	}
	return options
}
