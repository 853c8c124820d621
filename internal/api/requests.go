// internal/api/requests.go
package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FieldError is one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a malformed submission.
type ValidationError struct {
	Message string
	Details []FieldError
}

func (e *ValidationError) Error() string { return e.Message }

// Scores are the two first-page scale answers shared by every variant. The
// justification text is required for a recommendation below 9 and a
// satisfaction of 6 or less.
type Scores struct {
	Recomendacion     *int   `json:"recomendacion" validate:"required,gte=0,lte=10"`
	RecomendacionText string `json:"recomendacion_text"`
	Satisfaccion      *int   `json:"satisfaccion" validate:"required,gte=1,lte=10"`
	SatisfaccionText  string `json:"satisfaccion_text"`
}

// Closing holds the page-three answers shared by every variant.
type Closing struct {
	PQRSMedios          []string `json:"pqrs_medios"`
	HaReclamado         string   `json:"ha_reclamado" validate:"omitempty,gate"`
	DesarrolloPropuesta []int    `json:"desarrollo_propuesta" validate:"omitempty,dive,gte=1,lte=10"`
	Sugerencias         string   `json:"sugerencias"`
}

// Form1Page2 is everything after the first page of form1.
type Form1Page2 struct {
	Atencion             []int  `json:"atencion" validate:"omitempty,dive,gte=1,lte=10"`
	TalentoHumano        []int  `json:"talento_humano" validate:"omitempty,dive,gte=1,lte=10"`
	Psicosocial          []int  `json:"psicosocial" validate:"omitempty,dive,gte=1,lte=10"`
	Dinamizadores        []int  `json:"dinamizadores" validate:"omitempty,dive,gte=1,lte=10"`
	ContactoDinamizador  string `json:"contacto_dinamizador" validate:"omitempty,gate"`
	AspectosDinamizador  []int  `json:"aspectos_dinamizador" validate:"omitempty,dive,gte=1,lte=10"`
	ContactoCoordinador  string `json:"contacto_coordinador" validate:"omitempty,gate"`
	AspectosSatisfaccion []int  `json:"aspectos_satisfaccion" validate:"omitempty,dive,gte=1,lte=10"`
	Closing
}

// Form1Request is the form1 submission body.
type Form1Request struct {
	Institucion string `json:"institucion" validate:"required"`
	Proyecto    string `json:"proyecto" validate:"required"`
	Scores
	Pagina2 *Form1Page2 `json:"pagina_2" validate:"required"`
}

// Form2Page2 is everything after the first page of form2. form3 and form4
// extend it.
type Form2Page2 struct {
	ProcesoAprendizaje         []int  `json:"proceso_aprendizaje" validate:"omitempty,dive,gte=1,lte=10"`
	HabilidadesDocentes        []int  `json:"habilidades_docentes" validate:"omitempty,dive,gte=1,lte=10"`
	AuxiliarSaludNutricion     []int  `json:"auxiliar_salud_nutricion" validate:"omitempty,dive,gte=1,lte=10"`
	PersonalAdministrativo     []int  `json:"personal_administrativo" validate:"omitempty,dive,gte=1,lte=10"`
	ActividadesAdministrativas []int  `json:"actividades_administrativas" validate:"omitempty,dive,gte=1,lte=10"`
	Alimentacion               []int  `json:"alimentacion" validate:"omitempty,dive,gte=1,lte=10"`
	ProfesionalesPsicosocial   []int  `json:"profesionales_psicosocial" validate:"omitempty,dive,gte=1,lte=10"`
	Nutricionista              []int  `json:"nutricionista" validate:"omitempty,dive,gte=1,lte=10"`
	EvaluacionAspectos         []int  `json:"evaluacion_aspectos" validate:"omitempty,dive,gte=1,lte=10"`
	ApoyoPsicosocial           string `json:"apoyo_piscosocial" validate:"omitempty,gate"`
	ContactoNutricionista      string `json:"contacto_nutricionista" validate:"omitempty,gate"`
	EspecialistaDesarrollo     string `json:"especialista_desarrollo" validate:"omitempty,gate"`
	Closing
}

// Form2Request is the form2 submission body.
type Form2Request struct {
	Lugar          string `json:"lugar" validate:"required"`
	NombreProyecto string `json:"nombre_proyecto" validate:"required"`
	Scores
	Pagina2 *Form2Page2 `json:"pagina_2" validate:"required"`
}

type Form3Page2 struct {
	Form2Page2
	CoordinadorZona []int `json:"coordinador_zona" validate:"omitempty,dive,gte=1,lte=10"`
}

// Form3Request is the form3 submission body.
type Form3Request struct {
	Lugar          string `json:"lugar" validate:"required"`
	NombreProyecto string `json:"nombre_proyecto" validate:"required"`
	Unidad         string `json:"unidad" validate:"required"`
	Scores
	Pagina2 *Form3Page2 `json:"pagina_2" validate:"required"`
}

type Form4Page2 struct {
	Form2Page2
	AcompanamientoFamilia []int `json:"acompanamiento_familia" validate:"omitempty,dive,gte=1,lte=10"`
	CoordinadorPedagogico []int `json:"coordinador_pedagogico" validate:"omitempty,dive,gte=1,lte=10"`
}

// Form4Request is the form4 submission body.
type Form4Request struct {
	Lugar          string `json:"lugar" validate:"required"`
	NombreProyecto string `json:"nombre_proyecto" validate:"required"`
	Scores
	Pagina2 *Form4Page2 `json:"pagina_2" validate:"required"`
}

// formRequest is a decoded, validated variant body.
type formRequest interface {
	submission() schemas.Submission
}

var requestTypes = map[string]func() formRequest{
	"form1": func() formRequest { return &Form1Request{} },
	"form2": func() formRequest { return &Form2Request{} },
	"form3": func() formRequest { return &Form3Request{} },
	"form4": func() formRequest { return &Form4Request{} },
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("gate", func(fl validator.FieldLevel) bool {
		_, err := schemas.ParseGateAnswer(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(validateScores, Scores{})
	return v
}

func validateScores(sl validator.StructLevel) {
	s := sl.Current().Interface().(Scores)
	if s.Recomendacion != nil && *s.Recomendacion < 9 && strings.TrimSpace(s.RecomendacionText) == "" {
		sl.ReportError(s.RecomendacionText, "recomendacion_text", "RecomendacionText", "required_below", "9")
	}
	if s.Satisfaccion != nil && *s.Satisfaccion <= 6 && strings.TrimSpace(s.SatisfaccionText) == "" {
		sl.ReportError(s.SatisfaccionText, "satisfaccion_text", "SatisfaccionText", "required_below", "7")
	}
}

// DecodeSubmission parses and validates a variant's JSON body.
func DecodeSubmission(variant string, body []byte) (schemas.Submission, error) {
	newRequest, ok := requestTypes[variant]
	if !ok {
		return schemas.Submission{}, fmt.Errorf("unknown form variant %q", variant)
	}
	req := newRequest()
	if err := json.Unmarshal(body, req); err != nil {
		return schemas.Submission{}, &ValidationError{Message: fmt.Sprintf("malformed request body: %v", err)}
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return schemas.Submission{}, newValidationError(verrs)
		}
		return schemas.Submission{}, fmt.Errorf("failed to validate request: %w", err)
	}
	sub := req.submission()
	sub.Variant = variant
	return sub, nil
}

func newValidationError(verrs validator.ValidationErrors) *ValidationError {
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Field: fieldPath(fe), Message: validationMessage(fe)})
	}
	return &ValidationError{Message: "Request validation failed", Details: details}
}

// embedded strips the names of embedded structs, whose fields appear at the
// top level of the JSON body.
var embedded = strings.NewReplacer("Scores.", "", "Closing.", "", "Form2Page2.", "")

// fieldPath converts an error namespace to the JSON path of the field.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	return embedded.Replace(ns)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "required_below":
		return "Required when the score is below " + fe.Param()
	case "gte":
		return "Must be greater than or equal to " + fe.Param()
	case "lte":
		return "Must be less than or equal to " + fe.Param()
	case "gate":
		return "Must be Si or No"
	default:
		return "Invalid value"
	}
}

// -- Conversion to submissions --

func (s Scores) apply(sub *schemas.Submission) {
	sub.Recommendation = *s.Recomendacion
	sub.RecommendationText = s.RecomendacionText
	sub.Satisfaction = *s.Satisfaccion
	sub.SatisfactionText = s.SatisfaccionText
}

func (c Closing) apply(sub *schemas.Submission) {
	sub.ComplaintChannels = c.PQRSMedios
	sub.Suggestions = c.Sugerencias
	setGate(sub, "ha_reclamado", c.HaReclamado)
	setSection(sub, "desarrollo_propuesta", c.DesarrolloPropuesta)
}

func newSubmission(identification map[string]string) schemas.Submission {
	return schemas.Submission{
		Identification: identification,
		Sections:       make(map[string][]int),
		Gates:          make(map[string]schemas.GateAnswer),
	}
}

// setSection records a section only when the list was supplied.
func setSection(sub *schemas.Submission, name string, answers []int) {
	if answers != nil {
		sub.Sections[name] = answers
	}
}

// setGate records a gate answer; the value was validated already.
func setGate(sub *schemas.Submission, name, answer string) {
	if answer == "" {
		return
	}
	if a, err := schemas.ParseGateAnswer(answer); err == nil {
		sub.Gates[name] = a
	}
}

func (r *Form1Request) submission() schemas.Submission {
	sub := newSubmission(map[string]string{"institucion": r.Institucion, "proyecto": r.Proyecto})
	r.Scores.apply(&sub)
	p := r.Pagina2
	setSection(&sub, "atencion", p.Atencion)
	setSection(&sub, "talento_humano", p.TalentoHumano)
	setSection(&sub, "psicosocial", p.Psicosocial)
	setSection(&sub, "dinamizadores", p.Dinamizadores)
	setSection(&sub, "aspectos_dinamizador", p.AspectosDinamizador)
	setSection(&sub, "aspectos_satisfaccion", p.AspectosSatisfaccion)
	setGate(&sub, "contacto_dinamizador", p.ContactoDinamizador)
	setGate(&sub, "contacto_coordinador", p.ContactoCoordinador)
	p.Closing.apply(&sub)
	return sub
}

func (p *Form2Page2) apply(sub *schemas.Submission) {
	setSection(sub, "proceso_aprendizaje", p.ProcesoAprendizaje)
	setSection(sub, "habilidades_docentes", p.HabilidadesDocentes)
	setSection(sub, "auxiliar_salud_nutricion", p.AuxiliarSaludNutricion)
	setSection(sub, "personal_administrativo", p.PersonalAdministrativo)
	setSection(sub, "actividades_administrativas", p.ActividadesAdministrativas)
	setSection(sub, "alimentacion", p.Alimentacion)
	setSection(sub, "profesionales_psicosocial", p.ProfesionalesPsicosocial)
	setSection(sub, "nutricionista", p.Nutricionista)
	setSection(sub, "evaluacion_aspectos", p.EvaluacionAspectos)
	setGate(sub, "apoyo_psicosocial", p.ApoyoPsicosocial)
	setGate(sub, "contacto_nutricionista", p.ContactoNutricionista)
	setGate(sub, "especialista_desarrollo", p.EspecialistaDesarrollo)
	p.Closing.apply(sub)
}

func (r *Form2Request) submission() schemas.Submission {
	sub := newSubmission(map[string]string{"lugar": r.Lugar, "nombre_proyecto": r.NombreProyecto})
	r.Scores.apply(&sub)
	r.Pagina2.apply(&sub)
	return sub
}

func (r *Form3Request) submission() schemas.Submission {
	sub := newSubmission(map[string]string{"lugar": r.Lugar, "nombre_proyecto": r.NombreProyecto, "unidad": r.Unidad})
	r.Scores.apply(&sub)
	r.Pagina2.Form2Page2.apply(&sub)
	setSection(&sub, "coordinador_zona", r.Pagina2.CoordinadorZona)
	return sub
}

func (r *Form4Request) submission() schemas.Submission {
	sub := newSubmission(map[string]string{"lugar": r.Lugar, "nombre_proyecto": r.NombreProyecto})
	r.Scores.apply(&sub)
	r.Pagina2.Form2Page2.apply(&sub)
	setSection(&sub, "acompanamiento_familia", r.Pagina2.AcompanamientoFamilia)
	setSection(&sub, "coordinador_pedagogico", r.Pagina2.CoordinadorPedagogico)
	return sub
}
