package render

import (
	"errors"
	"sort"
	"testing"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContent = `<h1>Statut {{ companyName }}</h1>
{% if isPreview %}<p class="notice">NACRT</p>{% endif %}
<p>Adresa: {{ address }}{{ missing.path }}</p>
{% for f in founders %}<p>{{ forloop.Counter }}. {{ f.name }} {{ f.sharePercentage }}%</p>{% endfor %}
<script>alert(1)</script>`

func testTemplate() *models.Template {
	return &models.Template{
		Slug:    "doo-statut",
		Version: 1,
		Content: testContent,
		Variables: map[string]models.Variable{
			"companyName": {Type: models.VarString, Required: true},
			"address":     {Type: models.VarString, Required: true},
			"isPreview":   {Type: models.VarBoolean},
			"founders": {Type: models.VarList, Required: true, Fields: map[string]models.Variable{
				"name":            {Type: models.VarString, Required: true},
				"idNumber":        {Type: models.VarString, Required: true},
				"sharePercentage": {Type: models.VarNumber, Required: true},
			}},
		},
	}
}

func testData(preview bool) map[string]any {
	return map[string]any{
		"companyName": "Primorje DOO",
		"address":     "Bulevar 1",
		"isPreview":   preview,
		"founders": []map[string]any{
			{"name": "Ana", "idNumber": "123", "sharePercentage": decimal.RequireFromString("60")},
			{"name": "Marko", "idNumber": "456", "sharePercentage": decimal.RequireFromString("40")},
		},
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	r := NewRenderer()
	first, err := r.Render(testTemplate(), testData(false))
	require.NoError(t, err)
	second, err := NewRenderer().Render(testTemplate(), testData(false))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderSubstitutesAndLoops(t *testing.T) {
	out, err := NewRenderer().Render(testTemplate(), testData(false))
	require.NoError(t, err)

	assert.Contains(t, out, "Statut Primorje DOO")
	assert.Contains(t, out, "<p>Adresa: Bulevar 1</p>")
	assert.Contains(t, out, "1. Ana 60%")
	assert.Contains(t, out, "2. Marko 40%")
	assert.NotContains(t, out, "NACRT")
	assert.NotContains(t, out, "<script")
}

func TestRenderPreviewFlag(t *testing.T) {
	out, err := NewRenderer().Render(testTemplate(), testData(true))
	require.NoError(t, err)
	assert.Contains(t, out, `<p class="notice">NACRT</p>`)
}

func TestRenderEscapesValues(t *testing.T) {
	data := testData(false)
	data["companyName"] = `<img src="http://example.com/x.png">`
	out, err := NewRenderer().Render(testTemplate(), data)
	require.NoError(t, err)
	assert.NotContains(t, out, "<img")
}

func TestRenderRejectsDataOutsideSchema(t *testing.T) {
	data := testData(false)
	delete(data, "companyName")
	data["founders"] = []map[string]any{{"name": "Ana", "sharePercentage": "abc"}}

	_, err := NewRenderer().Render(testTemplate(), data)
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrValidation))

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Fields))
	for k := range verr.Fields {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	want := []string{"companyName", "founders[0].idNumber", "founders[0].sharePercentage"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Fatalf("unexpected field errors (-want +got):\n%s", diff)
	}
}

func TestValidateDataShapes(t *testing.T) {
	vars := map[string]models.Variable{
		"capital":  {Type: models.VarNumber, Required: true},
		"resident": {Type: models.VarBoolean},
		"owner":    {Type: models.VarObject, Fields: map[string]models.Variable{"name": {Type: models.VarString, Required: true}}},
		"optional": {Type: models.VarString},
	}
	require.NoError(t, ValidateData(vars, map[string]any{"capital": "1000.50", "resident": true}))

	err := ValidateData(vars, map[string]any{"capital": "x", "resident": "yes", "owner": map[string]any{}})
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 3)
	assert.Equal(t, "is required", verr.Fields["owner.name"])
}

func TestComposeModes(t *testing.T) {
	c, err := NewCompositor("", "")
	require.NoError(t, err)

	final, err := c.Compose(ModeFinal, "Statut", "<p>Tekst</p>")
	require.NoError(t, err)
	assert.Contains(t, final, "<!DOCTYPE html>")
	assert.Contains(t, final, "@page { size: A4; margin: 15mm 20mm; }")
	assert.Contains(t, final, "<p>Tekst</p>")
	assert.NotContains(t, final, DefaultWatermark)

	preview, err := c.Compose(ModePreview, "Statut", "<p>Tekst</p>")
	require.NoError(t, err)
	assert.Contains(t, preview, DefaultWatermark)
	assert.Contains(t, preview, DefaultBanner)
	assert.Contains(t, preview, ".sensitive { filter: blur(3px); }")
	assert.Contains(t, preview, "<p>Tekst</p>")
}
