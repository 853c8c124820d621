// internal/forms/descriptor.go
package forms

import (
	"fmt"
	"sort"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

// SectionDescriptor describes one scale-matrix question. len(RowIDs) is the
// exact number of answers the section accepts.
type SectionDescriptor struct {
	QuestionID    string
	SubQuestionID string
	RowIDs        []string
	DisplayName   string
}

// Cell returns the locator of the answer choice for row at value.
func (d SectionDescriptor) Cell(row string, value int) schemas.Locator {
	return schemas.ByID(fmt.Sprintf("QR~%s#%s~%s~%d", d.QuestionID, d.SubQuestionID, row, value))
}

// SectionTable maps section names to their descriptors for one variant.
type SectionTable map[string]SectionDescriptor

// Lookup returns the named descriptor or a ConfigurationError.
func (t SectionTable) Lookup(name string) (SectionDescriptor, error) {
	d, ok := t[name]
	if !ok {
		return SectionDescriptor{}, &ConfigurationError{Kind: UnknownSection, Name: name}
	}
	return d, nil
}

// Names returns the section names in order.
func (t SectionTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TextField is a free-text input addressed by a fixed locator.
type TextField struct {
	Name    string
	Locator schemas.Locator
}

// ScaleQuestion is a single-row scale whose answer cells are addressed by
// position. The justification field is filled when the answer is below
// JustifyBelow.
type ScaleQuestion struct {
	Name          string
	CellPath      string // fmt template taking the 1-based column index
	Justification TextField
	JustifyBelow  int
}

// Cell returns the locator of the scale choice for value. Value v sits in
// column v+1 on every observed scale.
func (q ScaleQuestion) Cell(value int) schemas.Locator {
	return schemas.ByXPath(fmt.Sprintf(q.CellPath, value+1))
}

// NeedsJustification reports whether value requires the justification text.
func (q ScaleQuestion) NeedsJustification(value int) bool {
	return value < q.JustifyBelow
}

// Gate is a Si/No question. Answering it reveals OnYes or OnNo, which are
// filled immediately after the answer click.
type Gate struct {
	Name  string
	Yes   schemas.Locator
	No    schemas.Locator
	OnYes []string
	OnNo  []string
}

// Answer returns the locator to click and the sections revealed by answer.
func (g Gate) Answer(answer schemas.GateAnswer) (schemas.Locator, []string) {
	if answer == schemas.GateYes {
		return g.Yes, g.OnYes
	}
	return g.No, g.OnNo
}

// ChannelGroup is the complaint-channel checkbox question.
type ChannelGroup struct {
	QuestionID string
	Choices    []ChannelChoice
}

// ChannelChoice maps a normalized channel name to its checkbox choice id.
// Order matters: the first matching entry wins.
type ChannelChoice struct {
	Key      string
	ChoiceID string
}

// Checkbox returns the checkbox locator for a choice id.
func (c ChannelGroup) Checkbox(choiceID string) schemas.Locator {
	return schemas.ByID(fmt.Sprintf("QR~%s~%s", c.QuestionID, choiceID))
}

// PhaseKind enumerates the steps a page after the first is made of.
type PhaseKind int

const (
	PhaseSection PhaseKind = iota
	PhaseGate
	PhaseChannels
	PhaseSuggestions
	PhaseNext
	PhaseFinalize
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseSection:
		return "section"
	case PhaseGate:
		return "gate"
	case PhaseChannels:
		return "channels"
	case PhaseSuggestions:
		return "suggestions"
	case PhaseNext:
		return "next"
	case PhaseFinalize:
		return "finalize"
	}
	return fmt.Sprintf("phase(%d)", int(k))
}

// Phase is one entry in a page's ordered script.
type Phase struct {
	Kind    PhaseKind
	Section string
	Gate    Gate
	Button  schemas.Locator
}

func fill(section string) Phase             { return Phase{Kind: PhaseSection, Section: section} }
func ask(g Gate) Phase                      { return Phase{Kind: PhaseGate, Gate: g} }
func channels() Phase                       { return Phase{Kind: PhaseChannels} }
func suggestions() Phase                    { return Phase{Kind: PhaseSuggestions} }
func next(button schemas.Locator) Phase     { return Phase{Kind: PhaseNext, Button: button} }
func finalize(button schemas.Locator) Phase { return Phase{Kind: PhaseFinalize, Button: button} }

// Variant is the complete data description of one form. A single Runner
// executes any Variant.
type Variant struct {
	ID    string
	Title string
	URL   string

	Identification []TextField
	Recommendation ScaleQuestion
	Satisfaction   ScaleQuestion
	FirstNext      schemas.Locator

	// Pages lists the scripts of every page after the first. The last page
	// ends with a finalize phase.
	Pages [][]Phase

	Sections    SectionTable
	Channels    ChannelGroup
	Suggestions TextField
}

// Gates returns the variant's gates in page order.
func (v *Variant) Gates() []Gate {
	var gates []Gate
	for _, page := range v.Pages {
		for _, p := range page {
			if p.Kind == PhaseGate {
				gates = append(gates, p.Gate)
			}
		}
	}
	return gates
}

// TotalRows is the number of matrix rows across all sections of the variant.
func (v *Variant) TotalRows() int {
	n := 0
	for _, d := range v.Sections {
		n += len(d.RowIDs)
	}
	return n
}
