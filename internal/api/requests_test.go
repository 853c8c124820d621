package api

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

const form1Body = `{
	"institucion": "Colegio San José",
	"proyecto": "Preescolar Integral 2025",
	"recomendacion": 10,
	"satisfaccion": 10,
	"pagina_2": {
		"atencion": [10, 10, 10, 10, 10, 10, 10],
		"talento_humano": [9, 9, 9, 9, 9, 9, 9, 9, 9],
		"contacto_dinamizador": "Si",
		"aspectos_dinamizador": [8, 8, 8, 8, 8, 8, 8],
		"contacto_coordinador": "no",
		"pqrs_medios": ["Pagina web", "Codigo QR"],
		"ha_reclamado": "No",
		"sugerencias": "Excelente programa."
	}
}`

const form2Body = `{
	"lugar": "Jardín Las Flores",
	"nombre_proyecto": "Integral 2025",
	"recomendacion": 4,
	"recomendacion_text": "Falta comunicación",
	"satisfaccion": 5,
	"satisfaccion_text": "Demoras en la atención",
	"pagina_2": {
		"proceso_aprendizaje": [10, 10, 10, 10],
		"apoyo_piscosocial": "Si",
		"profesionales_psicosocial": [7, 7, 7, 7, 7],
		"contacto_nutricionista": "No",
		"pqrs_medios": []
	}
}`

func TestDecodeSubmission_Form1(t *testing.T) {
	sub, err := DecodeSubmission("form1", []byte(form1Body))
	require.NoError(t, err)

	assert.Equal(t, "form1", sub.Variant)
	assert.Equal(t, map[string]string{"institucion": "Colegio San José", "proyecto": "Preescolar Integral 2025"}, sub.Identification)
	assert.Equal(t, 10, sub.Recommendation)
	assert.Equal(t, 10, sub.Satisfaction)

	wantSections := map[string][]int{
		"atencion":             {10, 10, 10, 10, 10, 10, 10},
		"talento_humano":       {9, 9, 9, 9, 9, 9, 9, 9, 9},
		"aspectos_dinamizador": {8, 8, 8, 8, 8, 8, 8},
	}
	if diff := cmp.Diff(wantSections, sub.Sections); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
	wantGates := map[string]schemas.GateAnswer{
		"contacto_dinamizador": schemas.GateYes,
		"contacto_coordinador": schemas.GateNo,
		"ha_reclamado":         schemas.GateNo,
	}
	if diff := cmp.Diff(wantGates, sub.Gates); diff != "" {
		t.Errorf("gates mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Pagina web", "Codigo QR"}, sub.ComplaintChannels)
	assert.Equal(t, "Excelente programa.", sub.Suggestions)
}

func TestDecodeSubmission_Form2WireKeys(t *testing.T) {
	sub, err := DecodeSubmission("form2", []byte(form2Body))
	require.NoError(t, err)

	assert.Equal(t, schemas.GateYes, sub.Gates["apoyo_psicosocial"], "apoyo_piscosocial maps to the psychosocial gate")
	assert.Equal(t, schemas.GateNo, sub.Gates["contacto_nutricionista"])
	_, answered := sub.Gates["especialista_desarrollo"]
	assert.False(t, answered, "omitted gates are left to the runner's default")
	assert.Equal(t, "Falta comunicación", sub.RecommendationText)
	assert.Equal(t, []int{7, 7, 7, 7, 7}, sub.Sections["profesionales_psicosocial"])
	assert.NotNil(t, sub.ComplaintChannels)
	assert.Empty(t, sub.ComplaintChannels)
}

func TestDecodeSubmission_Form3And4(t *testing.T) {
	form3 := `{"lugar":"a","nombre_proyecto":"b","unidad":"c","recomendacion":9,"satisfaccion":7,
		"pagina_2":{"coordinador_zona":[10,9,8,7],"contacto_nutricionista":"Si"}}`
	sub, err := DecodeSubmission("form3", []byte(form3))
	require.NoError(t, err)
	assert.Equal(t, "c", sub.Identification["unidad"])
	assert.Equal(t, []int{10, 9, 8, 7}, sub.Sections["coordinador_zona"])

	form4 := `{"lugar":"a","nombre_proyecto":"b","recomendacion":9,"satisfaccion":7,
		"pagina_2":{"acompanamiento_familia":[10,10,10,10,10],"coordinador_pedagogico":[9,9,9,9]}}`
	sub, err = DecodeSubmission("form4", []byte(form4))
	require.NoError(t, err)
	assert.Len(t, sub.Sections["acompanamiento_familia"], 5)
	assert.Len(t, sub.Sections["coordinador_pedagogico"], 4)
}

func TestDecodeSubmission_Validation(t *testing.T) {
	tests := []struct {
		name    string
		variant string
		body    string
		fields  []string
	}{
		{
			name:    "missing identification and scores",
			variant: "form1",
			body:    `{"pagina_2": {}}`,
			fields:  []string{"institucion", "proyecto", "recomendacion", "satisfaccion"},
		},
		{
			name:    "missing page two",
			variant: "form1",
			body:    `{"institucion":"a","proyecto":"b","recomendacion":10,"satisfaccion":10}`,
			fields:  []string{"pagina_2"},
		},
		{
			name:    "recommendation out of range",
			variant: "form2",
			body:    `{"lugar":"a","nombre_proyecto":"b","recomendacion":11,"satisfaccion":10,"pagina_2":{}}`,
			fields:  []string{"recomendacion"},
		},
		{
			name:    "satisfaction zero",
			variant: "form2",
			body:    `{"lugar":"a","nombre_proyecto":"b","recomendacion":10,"satisfaccion":0,"satisfaccion_text":"x","pagina_2":{}}`,
			fields:  []string{"satisfaccion"},
		},
		{
			name:    "justifications required for low scores",
			variant: "form2",
			body:    `{"lugar":"a","nombre_proyecto":"b","recomendacion":8,"satisfaccion":6,"pagina_2":{}}`,
			fields:  []string{"recomendacion_text", "satisfaccion_text"},
		},
		{
			name:    "scale value out of range",
			variant: "form1",
			body:    `{"institucion":"a","proyecto":"b","recomendacion":10,"satisfaccion":10,"pagina_2":{"atencion":[10,0]}}`,
			fields:  []string{"pagina_2.atencion[1]"},
		},
		{
			name:    "bad gate answer",
			variant: "form2",
			body:    `{"lugar":"a","nombre_proyecto":"b","recomendacion":10,"satisfaccion":10,"pagina_2":{"apoyo_piscosocial":"maybe","ha_reclamado":"yes"}}`,
			fields:  []string{"pagina_2.apoyo_piscosocial", "pagina_2.ha_reclamado"},
		},
		{
			name:    "form3 requires unidad",
			variant: "form3",
			body:    `{"lugar":"a","nombre_proyecto":"b","recomendacion":10,"satisfaccion":10,"pagina_2":{}}`,
			fields:  []string{"unidad"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSubmission(tt.variant, []byte(tt.body))
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)

			var got []string
			for _, d := range verr.Details {
				got = append(got, d.Field)
				assert.NotEmpty(t, d.Message)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestDecodeSubmission_ZeroRecommendationIsValid(t *testing.T) {
	body := `{"institucion":"a","proyecto":"b","recomendacion":0,"recomendacion_text":"nada","satisfaccion":1,"satisfaccion_text":"nada","pagina_2":{}}`
	sub, err := DecodeSubmission("form1", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 0, sub.Recommendation)
	assert.Equal(t, 1, sub.Satisfaction)
}

func TestDecodeSubmission_Errors(t *testing.T) {
	_, err := DecodeSubmission("form9", []byte(`{}`))
	require.Error(t, err)
	var verr *ValidationError
	assert.NotErrorAs(t, err, &verr, "an unknown variant is not a body validation error")

	_, err = DecodeSubmission("form1", []byte(`{"institucion":`))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "malformed request body")
}
