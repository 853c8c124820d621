package schemas

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LocatorKind identifies how a Locator's value is resolved on the page.
type LocatorKind string

const (
	// LocateByID matches the element whose id attribute equals Value exactly.
	// Survey ids contain '~' and '#', so they are never fed to a CSS engine raw.
	LocateByID    LocatorKind = "id"
	LocateByCSS   LocatorKind = "css"
	LocateByXPath LocatorKind = "xpath"
)

// Locator addresses a single element on the target page.
type Locator struct {
	Kind  LocatorKind `json:"kind"`
	Value string      `json:"value"`
}

func ByID(id string) Locator        { return Locator{Kind: LocateByID, Value: id} }
func ByCSS(selector string) Locator { return Locator{Kind: LocateByCSS, Value: selector} }
func ByXPath(path string) Locator   { return Locator{Kind: LocateByXPath, Value: path} }

// IsZero reports whether the locator was never set.
func (l Locator) IsZero() bool { return l.Value == "" }

// LabelFor returns the label element that proxies clicks for an id locator.
// Only id locators have a label proxy.
func (l Locator) LabelFor() (Locator, bool) {
	if l.Kind != LocateByID {
		return Locator{}, false
	}
	return ByXPath(fmt.Sprintf("//label[@for=%s]", XPathLiteral(l.Value))), true
}

// XPath returns an XPath expression equivalent to the locator, or false for CSS.
func (l Locator) XPath() (string, bool) {
	switch l.Kind {
	case LocateByID:
		return fmt.Sprintf("//*[@id=%s]", XPathLiteral(l.Value)), true
	case LocateByXPath:
		return l.Value, true
	}
	return "", false
}

// JSElement returns a JavaScript expression evaluating to the element (or null).
func (l Locator) JSElement() string {
	quoted, _ := json.Marshal(l.Value)
	switch l.Kind {
	case LocateByID:
		return fmt.Sprintf("document.getElementById(%s)", quoted)
	case LocateByXPath:
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", quoted)
	default:
		return fmt.Sprintf("document.querySelector(%s)", quoted)
	}
}

func (l Locator) String() string {
	return string(l.Kind) + "=" + l.Value
}

// XPathLiteral quotes s for use inside an XPath 1.0 expression.
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
