// Package classify decides whether a declaration shows a link to Russia.
//
// Rules are evaluated in a fixed order and the first match wins: structured
// country codes on the declarant, foreign identity documents, then keyword
// scans of the declarant, the asset and income sections and the relatives.
// Absent or null sections count as empty. A section of the wrong shape yields
// a non-related verdict whose reason starts with "error: ".
package classify

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/DeafMist/decl-radar/backend/internal/models"
)

// ForeignCode is the registry's country code for Russia.
const ForeignCode = "180"

// Reasons reported for structured matches.
const (
	ReasonActualCountry = "actual_country == " + ForeignCode
	ReasonCountry       = "country == " + ForeignCode
	ReasonDocument      = "nui_document_country == " + ForeignCode
	ReasonDeclarantText = "Текст у step_1 містить згадку про РФ"
	ReasonRelatives     = "Родич(і) пов'язані з РФ (step_2)"
)

// Keywords are matched case-insensitively against every string leaf.
var Keywords = []string{
	"росія",
	"росії",
	"російськ",
	"россия",
	"российск",
	"russia",
}

// Sections lists the asset, income and liability steps that are scanned.
var Sections = []string{"step_3", "step_4", "step_5", "step_6", "step_7", "step_8", "step_9"}

// codeFields are keys whose value is compared against ForeignCode inside the
// scanned sections and relatives.
var codeFields = []string{"country", "citizenship"}

// Verdict is the classifier's answer. Reason is empty when Related is false,
// unless classification failed.
type Verdict struct {
	Related bool
	Reason  string
}

// SectionReason is the reason reported for a match inside section key.
func SectionReason(key string) string {
	return fmt.Sprintf("Дані з %s містять згадку про РФ", key)
}

// Classify never panics and never returns an error.
func Classify(d models.Detail) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = failed(fmt.Errorf("%v", r))
		}
	}()

	v, err := classify(d.Root())
	if err != nil {
		return failed(err)
	}
	return v
}

func failed(err error) Verdict {
	return Verdict{Related: false, Reason: "error: " + err.Error()}
}

func classify(root gjson.Result) (Verdict, error) {
	declarant, err := object(root, "data", "step_1", "data")
	if err != nil {
		return Verdict{}, err
	}

	if scalar(declarant.Get("actual_country")) == ForeignCode {
		return Verdict{Related: true, Reason: ReasonActualCountry}, nil
	}
	if scalar(declarant.Get("country")) == ForeignCode {
		return Verdict{Related: true, Reason: ReasonCountry}, nil
	}

	docs, err := entries(declarant.Get("non_ukraine_identity"), "data.step_1.data.non_ukraine_identity")
	if err != nil {
		return Verdict{}, err
	}
	for _, doc := range docs {
		if scalar(doc.Get("nui_document_country")) == ForeignCode {
			return Verdict{Related: true, Reason: ReasonDocument}, nil
		}
	}

	if mentions(declarant) {
		return Verdict{Related: true, Reason: ReasonDeclarantText}, nil
	}

	for _, key := range Sections {
		section, err := object(root, "data", key, "data")
		if err != nil {
			return Verdict{}, err
		}
		if mentions(section) || carriesCode(section) {
			return Verdict{Related: true, Reason: SectionReason(key)}, nil
		}
	}

	family, err := object(root, "data", "step_2", "data")
	if err != nil {
		return Verdict{}, err
	}
	relatives, err := entries(family.Get("relatives"), "data.step_2.data.relatives")
	if err != nil {
		return Verdict{}, err
	}
	for _, rel := range relatives {
		if mentions(rel) || carriesCode(rel) {
			return Verdict{Related: true, Reason: ReasonRelatives}, nil
		}
	}

	return Verdict{}, nil
}

// object walks keys from root. A missing or null step ends the walk with an
// empty result; any other non-object step is an error.
func object(root gjson.Result, keys ...string) (gjson.Result, error) {
	cur := root
	for i, key := range keys {
		if !present(cur) {
			return gjson.Result{}, nil
		}
		if !cur.IsObject() {
			return gjson.Result{}, fmt.Errorf("%s: unexpected %s", pathName(keys[:i]), kind(cur))
		}
		cur = cur.Get(key)
	}
	if present(cur) && !cur.IsObject() {
		return gjson.Result{}, fmt.Errorf("%s: unexpected %s", strings.Join(keys, "."), kind(cur))
	}
	return cur, nil
}

func pathName(keys []string) string {
	if len(keys) == 0 {
		return "root"
	}
	return strings.Join(keys, ".")
}

// entries returns the members of a keyed object or the elements of an array.
func entries(r gjson.Result, path string) ([]gjson.Result, error) {
	if !present(r) {
		return nil, nil
	}
	if !r.IsObject() && !r.IsArray() {
		return nil, fmt.Errorf("%s: unexpected %s", path, kind(r))
	}
	var out []gjson.Result
	r.ForEach(func(_, value gjson.Result) bool {
		out = append(out, value)
		return true
	})
	return out, nil
}

// mentions reports whether any string or number leaf under r contains a keyword.
func mentions(r gjson.Result) bool {
	found := false
	walk(r, func(_ string, leaf gjson.Result) bool {
		text := strings.ToLower(scalar(leaf))
		for _, kw := range Keywords {
			if strings.Contains(text, kw) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// carriesCode reports whether any country or citizenship field under r equals
// ForeignCode.
func carriesCode(r gjson.Result) bool {
	found := false
	walk(r, func(key string, leaf gjson.Result) bool {
		for _, f := range codeFields {
			if key == f && scalar(leaf) == ForeignCode {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// walk calls fn for every scalar leaf with the key it is stored under (empty
// for array elements). Returning false stops the walk.
func walk(r gjson.Result, fn func(key string, leaf gjson.Result) bool) bool {
	return walkKey("", r, fn)
}

func walkKey(key string, r gjson.Result, fn func(string, gjson.Result) bool) bool {
	if r.IsObject() || r.IsArray() {
		cont := true
		r.ForEach(func(k, v gjson.Result) bool {
			childKey := ""
			if r.IsObject() {
				childKey = k.String()
			}
			cont = walkKey(childKey, v, fn)
			return cont
		})
		return cont
	}
	if !present(r) {
		return true
	}
	return fn(key, r)
}

func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

// scalar returns the text of a string or number; other kinds yield "".
func scalar(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

func kind(r gjson.Result) string {
	switch {
	case r.IsObject():
		return "object"
	case r.IsArray():
		return "array"
	}
	switch r.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	default:
		return "value"
	}
}
