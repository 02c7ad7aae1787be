// Package locator describes how page elements on the HidenCloud panel are found.
//
// The panel markup has been seen in two variants and the status/button text
// is matched heuristically, so every locator lives here (and can be
// overridden from the config file) instead of being scattered through the
// flow. Update these when renewal breaks.
package locator

import (
	"fmt"
	"strings"
)

// By names the matching strategy of a Locator.
type By string

const (
	ByCSS   By = "css"   // CSS selector
	ByXPath By = "xpath" // XPath expression
	ByName  By = "name"  // value of the name attribute
	ByText  By = "text"  // any element whose own text contains the value
)

// Locator is a stateless rule for finding one element on the current page.
type Locator struct {
	By    By     `toml:"by"`
	Value string `toml:"value"`
}

// CSS returns a CSS locator.
func CSS(sel string) Locator { return Locator{By: ByCSS, Value: sel} }

// XPath returns an XPath locator.
func XPath(expr string) Locator { return Locator{By: ByXPath, Value: expr} }

// Name returns a locator matching the name attribute.
func Name(name string) Locator { return Locator{By: ByName, Value: name} }

// Text returns a locator matching elements whose text contains s.
func Text(s string) Locator { return Locator{By: ByText, Value: s} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.By, l.Value)
}

// Validate reports whether the locator can be turned into a query.
func (l Locator) Validate() error {
	if strings.TrimSpace(l.Value) == "" {
		return fmt.Errorf("locator %q: empty value", l.By)
	}
	switch l.By {
	case ByCSS, ByXPath, ByName, ByText:
		return nil
	default:
		return fmt.Errorf("locator %q: unknown strategy", l.By)
	}
}

// Selector converts the locator to a CSS selector or XPath expression.
// The boolean is true when the result is XPath.
func (l Locator) Selector() (string, bool) {
	switch l.By {
	case ByXPath:
		return l.Value, true
	case ByName:
		return fmt.Sprintf(`[name=%q]`, l.Value), false
	case ByText:
		return fmt.Sprintf("//*[contains(text(), %s)]", XPathLiteral(l.Value)), true
	default:
		return l.Value, false
	}
}

// XPathLiteral quotes s as an XPath string literal. XPath 1.0 has no escape
// sequences, so strings holding both quote kinds are built with concat().
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + p + "'")
	}
	b.WriteString(")")
	return b.String()
}
