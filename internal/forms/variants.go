// internal/forms/variants.go
package forms

import (
	"fmt"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

// Page structure of the hosted survey. Questions live in consecutive divs
// under questionList; the buttons row follows it.
const (
	questionList = "/html/body/div[3]/div/form/div/div[2]/div[1]/div[3]/div[1]"
	buttonRow    = "/html/body/div[3]/div/form/div/div[2]/div[1]/div[3]/div[2]"
)

var (
	// firstNext is the only button on the first page.
	firstNext = schemas.ByXPath(buttonRow + "/input")
	// secondButton is "next" or "finalize" on pages that also show "back".
	secondButton = schemas.ByXPath(buttonRow + "/input[2]")
)

func questionTable(div int) string {
	return fmt.Sprintf("%s/div[%d]/div[3]/div/fieldset/div/table/tbody", questionList, div)
}

func scale(name string, div int, justification TextField, justifyBelow int) ScaleQuestion {
	return ScaleQuestion{
		Name:          name,
		CellPath:      questionTable(div) + "/tr[2]/td[%d]/span/label",
		Justification: justification,
		JustifyBelow:  justifyBelow,
	}
}

func gate(name string, div int, onYes, onNo []string) Gate {
	return Gate{
		Name:  name,
		Yes:   schemas.ByXPath(questionTable(div) + "/tr/td[1]/span/label"),
		No:    schemas.ByXPath(questionTable(div) + "/tr/td[2]/span/label"),
		OnYes: onYes,
		OnNo:  onNo,
	}
}

func section(qid, display string, rows ...string) SectionDescriptor {
	return SectionDescriptor{QuestionID: qid, SubQuestionID: "1", RowIDs: rows, DisplayName: display}
}

func text(name, id string) TextField {
	return TextField{Name: name, Locator: schemas.ByID(id)}
}

// Recommendation below 9 and satisfaction of 6 or less need a justification.
func recommendation(div int) ScaleQuestion {
	return scale("recomendacion", div, text("recomendacion_text", "QR~QID13"), 9)
}

func satisfaction(div int) ScaleQuestion {
	return scale("satisfaccion", div, text("satisfaccion_text", "QR~QID53"), 7)
}

func complaintChannels() ChannelGroup {
	return ChannelGroup{
		QuestionID: "QID65",
		Choices: []ChannelChoice{
			{Key: "call center", ChoiceID: "1"},
			{Key: "correo electronico", ChoiceID: "4"},
			{Key: "telefonicamente", ChoiceID: "5"},
			{Key: "verbalmente", ChoiceID: "6"},
			{Key: "pagina web", ChoiceID: "7"},
			{Key: "codigo qr", ChoiceID: "8"},
			{Key: "ninguna", ChoiceID: "3"},
		},
	}
}

// form1 is the first-cycle evaluation. Everything after the first page is a
// single page.
func form1() *Variant {
	return &Variant{
		ID:    "form1",
		Title: "Evaluación Preescolar Integrales v1",
		URL:   "https://colsubsidio.az1.qualtrics.com/jfe/form/SV_dhz8RuGCTqJm1Ui",
		Identification: []TextField{
			text("institucion", "QR~QID57"),
			text("proyecto", "QR~QID43"),
		},
		Recommendation: recommendation(8),
		Satisfaction:   satisfaction(12),
		FirstNext:      firstNext,
		Pages: [][]Phase{{
			fill("atencion"),
			fill("talento_humano"),
			fill("psicosocial"),
			fill("dinamizadores"),
			ask(gate("contacto_dinamizador", 10, []string{"aspectos_dinamizador"}, nil)),
			ask(gate("contacto_coordinador", 14, []string{"aspectos_satisfaccion"}, nil)),
			channels(),
			ask(gate("ha_reclamado", 20, nil, nil)),
			fill("desarrollo_propuesta"),
			suggestions(),
			finalize(secondButton),
		}},
		Sections: SectionTable{
			"atencion":              section("QID27", "Atención del programa", "3", "61", "62", "63", "64", "65", "66"),
			"talento_humano":        section("QID54", "Habilidades del talento humano", "61", "63", "64", "65", "66", "67", "68", "69", "70"),
			"psicosocial":           section("QID72", "Profesional psicosocial", "61", "66", "67", "68", "69", "70", "71"),
			"dinamizadores":         section("QID73", "Dinamizadores pedagógicos", "61", "71", "75", "76", "77", "78", "79"),
			"desarrollo_propuesta":  section("QID70", "Desarrollo de la propuesta", "61", "99", "100", "101", "102", "103", "104"),
			"aspectos_satisfaccion": section("QID63", "Aspectos de satisfacción con el coordinador", "93", "90", "92", "61", "91"),
			"aspectos_dinamizador":  section("QID62", "Aspectos del dinamizador", "86", "87", "88", "61", "83", "84", "85"),
		},
		Channels:    complaintChannels(),
		Suggestions: text("sugerencias", "QR~QID51"),
	}
}

// integralPages is the two-page script shared by the second to fourth
// variants. extra sections are filled at the end of the first of them.
func integralPages(nutritionYes, nutritionNo []string, extra ...string) [][]Phase {
	page2 := []Phase{
		fill("proceso_aprendizaje"),
		fill("habilidades_docentes"),
		ask(gate("apoyo_psicosocial", 6, []string{"profesionales_psicosocial"}, nil)),
		ask(gate("contacto_nutricionista", 10, nutritionYes, nutritionNo)),
		ask(gate("especialista_desarrollo", 18, []string{"evaluacion_aspectos"}, nil)),
		fill("actividades_administrativas"),
		fill("alimentacion"),
	}
	for _, name := range extra {
		page2 = append(page2, fill(name))
	}
	page2 = append(page2, next(secondButton))

	page3 := []Phase{
		channels(),
		ask(gate("ha_reclamado", 4, nil, nil)),
		fill("desarrollo_propuesta"),
		suggestions(),
		finalize(secondButton),
	}
	return [][]Phase{page2, page3}
}

func integralIdentification() []TextField {
	return []TextField{
		text("lugar", "QR~QID57"),
		text("nombre_proyecto", "QR~QID43"),
	}
}

// form2 has no unit field and no zone coordinator.
func form2() *Variant {
	return &Variant{
		ID:             "form2",
		Title:          "Evaluación Preescolar Integrales v2",
		URL:            "https://colsubsidio.az1.qualtrics.com/jfe/form/SV_6VaaNLR3jmRV4pw",
		Identification: integralIdentification(),
		Recommendation: recommendation(8),
		Satisfaction:   satisfaction(12),
		FirstNext:      firstNext,
		Pages: integralPages(
			[]string{"nutricionista", "auxiliar_salud_nutricion", "personal_administrativo"},
			[]string{"auxiliar_salud_nutricion", "personal_administrativo"},
		),
		Sections: SectionTable{
			"proceso_aprendizaje":         section("QID27", "Proceso de aprendizaje de los niños", "3", "67", "68", "69"),
			"habilidades_docentes":        section("QID54", "Habilidades de los docentes", "61", "71", "72", "73", "74", "75", "76"),
			"auxiliar_salud_nutricion":    section("QID73", "Auxiliar de apoyo en salud y nutrición", "72", "73", "74", "75"),
			"personal_administrativo":     section("QID74", "Personal administrativo", "72", "73", "74", "75"),
			"actividades_administrativas": section("QID75", "Actividades administrativas", "61", "95", "96", "97"),
			"alimentacion":                section("QID76", "Alimentación brindada en el jardín", "61", "99", "100"),
			"desarrollo_propuesta":        section("QID70", "Desarrollo de la propuesta", "61", "105", "106", "107"),
			"profesionales_psicosocial":   section("QID55", "Profesionales de apoyo psicosocial", "61", "76", "77", "78", "79"),
			"nutricionista":               section("QID59", "Habilidades del nutricionista", "72", "73", "74", "75", "76"),
			"evaluacion_aspectos":         section("QID63", "Evaluación de aspectos", "61", "90", "91", "92", "93"),
		},
		Channels:    complaintChannels(),
		Suggestions: text("sugerencias", "QR~QID51"),
	}
}

// form3 adds the unit field and the zone coordinator, which is only reachable
// after contact with the nutritionist.
func form3() *Variant {
	return &Variant{
		ID:             "form3",
		Title:          "Evaluación Preescolar Integrales v3",
		URL:            "https://colsubsidio.az1.qualtrics.com/jfe/form/SV_cZQUXOINZrCcUx8",
		Identification: append(integralIdentification(), text("unidad", "QR~QID78")),
		Recommendation: recommendation(10),
		Satisfaction:   satisfaction(14),
		FirstNext:      firstNext,
		Pages: integralPages(
			[]string{"nutricionista", "auxiliar_salud_nutricion", "personal_administrativo", "coordinador_zona"},
			[]string{"auxiliar_salud_nutricion", "personal_administrativo"},
		),
		Sections: SectionTable{
			"proceso_aprendizaje":         section("QID27", "Proceso de aprendizaje de los niños", "3", "67", "68", "69", "70"),
			"habilidades_docentes":        section("QID54", "Habilidades de los docentes", "61", "71", "72", "73", "74", "75", "76"),
			"auxiliar_salud_nutricion":    section("QID73", "Auxiliar de apoyo en salud y nutrición", "72", "73", "74", "75"),
			"personal_administrativo":     section("QID74", "Personal administrativo", "72", "73", "74", "75"),
			"actividades_administrativas": section("QID75", "Actividades administrativas", "61", "95", "96", "97"),
			"alimentacion":                section("QID76", "Alimentación brindada en el jardín", "61", "99", "100", "101"),
			"desarrollo_propuesta":        section("QID70", "Desarrollo de la propuesta", "61", "105", "106", "107", "108", "109", "110"),
			"profesionales_psicosocial":   section("QID55", "Profesionales de apoyo psicosocial", "61", "76", "77", "78", "79"),
			"nutricionista":               section("QID59", "Habilidades del nutricionista", "72", "73", "74", "75", "76"),
			"evaluacion_aspectos":         section("QID63", "Evaluación de aspectos", "61", "90", "91", "92", "93"),
			"coordinador_zona":            section("QID80", "Habilidades del coordinador de zona", "72", "77", "74", "75"),
		},
		Channels:    complaintChannels(),
		Suggestions: text("sugerencias", "QR~QID51"),
	}
}

// form4 extends form2 with family accompaniment and the pedagogical
// coordinator, both unconditional.
func form4() *Variant {
	v := form2()
	v.ID = "form4"
	v.Title = "Evaluación Preescolar Integrales v4"
	v.URL = "https://colsubsidio.az1.qualtrics.com/jfe/form/SV_39rtVbeLsFoU9Bc"
	v.Pages = integralPages(
		[]string{"nutricionista", "auxiliar_salud_nutricion", "personal_administrativo"},
		[]string{"auxiliar_salud_nutricion", "personal_administrativo"},
		"acompanamiento_familia", "coordinador_pedagogico",
	)
	v.Sections["acompanamiento_familia"] = section("QID81", "Acompañamiento a las familias", "61", "111", "112", "113", "114")
	v.Sections["coordinador_pedagogico"] = section("QID82", "Habilidades del coordinador pedagógico", "72", "73", "74", "75")
	return v
}

// builtinVariants returns fresh copies of every known variant.
func builtinVariants() []*Variant {
	return []*Variant{form1(), form2(), form3(), form4()}
}
