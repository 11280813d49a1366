package classify_test

import (
	"strings"
	"testing"

	"github.com/DeafMist/decl-radar/backend/internal/classify"
	"github.com/DeafMist/decl-radar/backend/internal/models"
	"github.com/stretchr/testify/require"
)

func detail(t *testing.T, raw string) models.Detail {
	t.Helper()
	d, err := models.ParseDetail([]byte(raw))
	require.NoError(t, err)
	return d
}

const cleanDeclaration = `{
	"id": "clean-1",
	"data": {
		"step_1": {"data": {
			"lastname": "Коваленко", "firstname": "Олена",
			"country": "1", "actual_country": "1",
			"workPlace": "Національний банк України",
			"non_ukraine_identity": {"1": {"nui_document_country": "2"}}
		}},
		"step_2": {"data": {"relatives": {
			"11": {"lastname": "Коваленко", "country": "1", "citizenship": "1"}
		}}},
		"step_3": {"data": {"1": {"objectType": "Квартира", "country": "1", "city": "Київ"}}},
		"step_6": {"data": [{"brand": "Skoda"}]},
		"step_11": {"data": {"1": {"source": "Russia Today"}}}
	}
}`

func TestClassifyClean(t *testing.T) {
	v := classify.Classify(detail(t, cleanDeclaration))
	require.False(t, v.Related)
	require.Empty(t, v.Reason)
}

func TestClassifyActualCountryWins(t *testing.T) {
	raw := `{"data": {
		"step_1": {"data": {"actual_country": "180", "country": "180", "note": "Russia"}},
		"step_2": {"data": {"relatives": {"1": {"citizenship": "180"}}}},
		"step_3": {"data": {"1": {"country": "180"}}}
	}}`

	v := classify.Classify(detail(t, raw))
	require.True(t, v.Related)
	require.Equal(t, classify.ReasonActualCountry, v.Reason)
	require.Contains(t, v.Reason, "actual_country")
}

func TestClassifyRuleOrder(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{
			name:   "numeric actual country",
			raw:    `{"data": {"step_1": {"data": {"actual_country": 180}}}}`,
			reason: classify.ReasonActualCountry,
		},
		{
			name:   "legal country",
			raw:    `{"data": {"step_1": {"data": {"actual_country": "1", "country": "180"}}}}`,
			reason: classify.ReasonCountry,
		},
		{
			name:   "foreign document keyed",
			raw:    `{"data": {"step_1": {"data": {"non_ukraine_identity": {"7": {"nui_document_country": "180"}}}}}}`,
			reason: classify.ReasonDocument,
		},
		{
			name:   "foreign document list",
			raw:    `{"data": {"step_1": {"data": {"non_ukraine_identity": [null, {"nui_document_country": "180"}]}}}}`,
			reason: classify.ReasonDocument,
		},
		{
			name:   "declarant text",
			raw:    `{"data": {"step_1": {"data": {"birthPlace": "м. Бєлгород, РОСІЯ"}}}}`,
			reason: classify.ReasonDeclarantText,
		},
		{
			name:   "declarant text english",
			raw:    `{"data": {"step_1": {"data": {"address": {"line": "Moscow, Russian Federation"}}}}}`,
			reason: classify.ReasonDeclarantText,
		},
		{
			name:   "section keyword",
			raw:    `{"data": {"step_1": {"data": {}}, "step_5": {"data": {"1": {"issuer": "ПАТ Російська компанія"}}}}}`,
			reason: classify.SectionReason("step_5"),
		},
		{
			name:   "section country code",
			raw:    `{"data": {"step_1": {"data": {}}, "step_4": {"data": {"1": {"rights": [{"country": "180"}]}}}}}`,
			reason: classify.SectionReason("step_4"),
		},
		{
			name:   "first section wins",
			raw:    `{"data": {"step_9": {"data": {"x": "Russia"}}, "step_3": {"data": {"x": "Росії"}}}}`,
			reason: classify.SectionReason("step_3"),
		},
		{
			name:   "section before relatives",
			raw:    `{"data": {"step_2": {"data": {"relatives": {"1": {"citizenship": "180"}}}}, "step_8": {"data": {"c": "russia"}}}}`,
			reason: classify.SectionReason("step_8"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classify.Classify(detail(t, tt.raw))
			require.True(t, v.Related)
			require.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestClassifyRelativeOnly(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "keyword in relative",
			raw: `{"data": {
				"step_1": {"data": {"country": "1", "actual_country": "1"}},
				"step_2": {"data": {"relatives": {"3": {"lastname": "Іванов", "birthPlace": "Росія, м. Курськ"}}}}
			}}`,
		},
		{
			name: "citizenship code in relative list",
			raw: `{"data": {
				"step_1": {"data": {"country": "1"}},
				"step_2": {"data": {"relatives": [{"lastname": "Петров", "citizenship": "180"}]}}
			}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classify.Classify(detail(t, tt.raw))
			require.True(t, v.Related)
			require.Equal(t, classify.ReasonRelatives, v.Reason)
			require.Contains(t, v.Reason, "step_2")
		})
	}
}

func TestClassifyAbsentSectionsAreEmpty(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"data": null}`,
		`{"data": {"step_1": null, "step_2": {"data": null}, "step_3": {}}}`,
		`{"data": {"step_1": {"data": {"non_ukraine_identity": null}}, "step_2": {"data": {"relatives": null}}}}`,
	} {
		v := classify.Classify(detail(t, raw))
		require.Equal(t, classify.Verdict{}, v, raw)
	}
}

func TestClassifyUnexpectedShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		path string
	}{
		{name: "root array", raw: `[1, 2]`, path: "root"},
		{name: "data string", raw: `{"data": "oops"}`, path: "data"},
		{name: "declarant list", raw: `{"data": {"step_1": {"data": []}}}`, path: "data.step_1.data"},
		{name: "identity scalar", raw: `{"data": {"step_1": {"data": {"non_ukraine_identity": "none"}}}}`, path: "non_ukraine_identity"},
		{name: "relatives number", raw: `{"data": {"step_2": {"data": {"relatives": 3}}}}`, path: "relatives"},
		{name: "section scalar", raw: `{"data": {"step_7": {"data": true}}}`, path: "data.step_7.data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classify.Classify(detail(t, tt.raw))
			require.False(t, v.Related)
			require.True(t, strings.HasPrefix(v.Reason, "error: "), v.Reason)
			require.Contains(t, v.Reason, tt.path)
		})
	}
}

func TestClassifyIgnoresKeysAndBooleans(t *testing.T) {
	raw := `{"data": {
		"step_1": {"data": {"russia": true, "flag": false}},
		"step_3": {"data": {"country": {"russian": null}}}
	}}`
	v := classify.Classify(detail(t, raw))
	require.False(t, v.Related)
	require.Empty(t, v.Reason)
}
