// Package ingest loads target lists from CSV files as exported by the
// spreadsheets sales teams keep: UTF-8 with or without a BOM, Shift_JIS
// (CP932) or EUC-JP, with or without a header row.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// ErrEmpty is returned for files without a single data row.
var ErrEmpty = errors.New("csv file has no data rows")

// Batch is a decoded, cleaned and validated target list.
type Batch struct {
	Targets []schemas.TargetRecord
	// Encoding is the name of the character set the file was decoded from.
	Encoding string
	// HasHeader reports whether the first row was consumed as a header.
	HasHeader bool
	// Duplicates counts rows dropped because (company, url) repeated.
	Duplicates int
}

type column int

const (
	colCompany column = iota
	colURL
	colContactURL
	colMessage
	colCount
)

var headerAliases = map[column][]string{
	colCompany:    {"company", "companyname", "企業名", "会社名", "社名"},
	colURL:        {"url", "website", "homepage", "siteurl", "ホームページ", "サイトurl", "hp"},
	colContactURL: {"contacturl", "contact", "formurl", "問い合わせurl", "お問い合わせurl", "お問い合わせ", "問い合わせ"},
	colMessage:    {"message", "body", "メッセージ", "本文", "問い合わせ内容"},
}

var nullish = map[string]bool{"nan": true, "None": true, "NA": true, "N/A": true}

type candidate struct {
	name string
	enc  encoding.Encoding
}

var fallbacks = []candidate{
	{"shift_jis", japanese.ShiftJIS},
	{"euc-jp", japanese.EUCJP},
}

// LoadTargets reads path and returns its targets in file order.
func LoadTargets(path string) ([]schemas.TargetRecord, error) {
	b, err := Load(path)
	if err != nil {
		return nil, err
	}
	return b.Targets, nil
}

// Load reads path (a leading ~ is expanded) and parses it.
func Load(path string) (*Batch, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand path %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	batch, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", expanded, err)
	}
	return batch, nil
}

// Parse decodes data and turns its rows into targets. A validation failure
// rejects the whole file and names the offending row.
func Parse(data []byte) (*Batch, error) {
	text, enc := Decode(data)
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	batch := &Batch{Encoding: enc}
	seen := make(map[[2]string]bool)
	mapping := positional()
	line := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		line++
		for i := range row {
			row[i] = clean(row[i])
		}
		if line == 1 {
			if m, ok := headerMapping(row); ok {
				mapping = m
				batch.HasHeader = true
				continue
			}
		}
		if blank(row) {
			continue
		}
		t := schemas.TargetRecord{
			CompanyName: cell(row, mapping[colCompany]),
			URL:         cell(row, mapping[colURL]),
			ContactURL:  cell(row, mapping[colContactURL]),
			Message:     cell(row, mapping[colMessage]),
		}
		if err := validate(t); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		key := [2]string{t.CompanyName, t.URL}
		if seen[key] {
			batch.Duplicates++
			continue
		}
		seen[key] = true
		batch.Targets = append(batch.Targets, t)
	}
	if len(batch.Targets) == 0 {
		return nil, ErrEmpty
	}
	return batch, nil
}

// Decode returns data as UTF-8 text along with the name of the encoding it
// was read as. Valid UTF-8 wins outright; otherwise the Japanese legacy
// encodings are tried and the one producing the least damage is kept.
func Decode(data []byte) (string, string) {
	if bytes.HasPrefix(data, []byte("\xef\xbb\xbf")) {
		return string(data[3:]), "utf-8-sig"
	}
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}
	best, bestName, bestScore := "", "", -1
	for _, c := range fallbacks {
		out, _, err := transform.Bytes(c.enc.NewDecoder(), data)
		if err != nil {
			continue
		}
		s := string(out)
		if score := damage(s); bestScore < 0 || score < bestScore {
			best, bestName, bestScore = s, c.name, score
		}
	}
	if bestScore < 0 {
		return strings.ToValidUTF8(string(data), "�"), "utf-8"
	}
	return best, bestName
}

// damage scores a decoding by replacement characters and half-width kana,
// which is what a wrong legacy decoder tends to produce.
func damage(s string) int {
	score := 0
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			score += 10
		case r >= 0xFF61 && r <= 0xFF9F:
			score++
		}
	}
	return score
}

func positional() [colCount]int {
	return [colCount]int{0, 1, 2, 3}
}

func headerMapping(row []string) ([colCount]int, bool) {
	var m [colCount]int
	for i := range m {
		m[i] = -1
	}
	for i, v := range row {
		key := normalizeHeader(v)
		for col, aliases := range headerAliases {
			if m[col] >= 0 {
				continue
			}
			for _, a := range aliases {
				if key == a {
					m[col] = i
					break
				}
			}
		}
	}
	return m, m[colCompany] >= 0 || m[colURL] >= 0
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "", "　", "").Replace(s)
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if nullish[s] {
		return ""
	}
	return s
}

func blank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func validate(t schemas.TargetRecord) error {
	if t.CompanyName == "" {
		return errors.New("company is required")
	}
	if t.URL == "" {
		return errors.New("url is required")
	}
	if !isWebURL(t.URL) {
		return fmt.Errorf("url %q must be an http(s) URL with a host", t.URL)
	}
	if t.ContactURL != "" && !isWebURL(t.ContactURL) {
		return fmt.Errorf("contact_url %q must be an http(s) URL with a host", t.ContactURL)
	}
	return nil
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
