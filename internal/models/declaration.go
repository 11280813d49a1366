package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Localized tokens used in the tabular outputs.
const (
	Yes = "Так"
	No  = "Ні"
)

// Columns is the header of both tabular outputs, in order.
var Columns = []string{
	"ПІБ",
	"Посада",
	"Місце роботи",
	"ID декларації",
	"Дата подання",
	"Зв'язок з РФ",
	"Причина підозри",
	"Посилання",
}

// IDColumn is the position of the declaration id in Columns.
const IDColumn = 3

// SubmissionDateLayout is the DD-MM-YYYY form written to the outputs.
const SubmissionDateLayout = "02-01-2006"

// Summary is the listing projection of one declaration.
type Summary struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Data struct {
		Step1 struct {
			Data Declarant `json:"data"`
		} `json:"step_1"`
	} `json:"data"`
}

// Declarant holds the identity fields the listing exposes.
type Declarant struct {
	LastName     string `json:"lastname"`
	FirstName    string `json:"firstname"`
	MiddleName   string `json:"middlename"`
	WorkPost     string `json:"workPost"`
	WorkPlace    string `json:"workPlace"`
	WorkPlaceEDR string `json:"workPlaceEdrpou"`
}

// Person returns the declarant block of the summary.
func (s Summary) Person() Declarant {
	return s.Data.Step1.Data
}

// FullName joins last, first and middle names.
func (d Declarant) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.LastName, d.FirstName, d.MiddleName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Detail is a full declaration payload kept as an untyped JSON tree.
type Detail struct {
	root gjson.Result
}

// ParseDetail validates raw JSON and wraps it.
func ParseDetail(raw []byte) (Detail, error) {
	if !gjson.ValidBytes(raw) {
		return Detail{}, errors.New("detail is not valid JSON")
	}
	return Detail{root: gjson.ParseBytes(raw)}, nil
}

// Root exposes the tree. Missing paths yield results with Exists() == false.
func (d Detail) Root() gjson.Result {
	return d.root
}

// Row is one line of output; DeclarationID is its natural key.
type Row struct {
	FullName       string `json:"full_name"`
	JobTitle       string `json:"job_title"`
	Workplace      string `json:"workplace"`
	DeclarationID  string `json:"declaration_id"`
	SubmissionDate string `json:"submission_date"`
	Related        bool   `json:"related"`
	Reason         string `json:"reason"`
	Permalink      string `json:"permalink"`
}

// Record renders the row in Columns order.
func (r Row) Record() []string {
	flag := No
	if r.Related {
		flag = Yes
	}
	return []string{
		r.FullName,
		r.JobTitle,
		r.Workplace,
		r.DeclarationID,
		r.SubmissionDate,
		flag,
		r.Reason,
		r.Permalink,
	}
}

// RowFromRecord is the inverse of Record.
func RowFromRecord(rec []string) (Row, error) {
	if len(rec) != len(Columns) {
		return Row{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(rec))
	}
	var related bool
	switch strings.TrimSpace(rec[5]) {
	case Yes:
		related = true
	case No, "":
	default:
		return Row{}, fmt.Errorf("unknown relation flag %q", rec[5])
	}
	return Row{
		FullName:       rec[0],
		JobTitle:       rec[1],
		Workplace:      rec[2],
		DeclarationID:  rec[3],
		SubmissionDate: rec[4],
		Related:        related,
		Reason:         rec[6],
		Permalink:      rec[7],
	}, nil
}

// FormatSubmissionDate converts a registry timestamp to SubmissionDateLayout.
func FormatSubmissionDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty submission date")
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts.Format(SubmissionDateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized submission date %q", raw)
}
