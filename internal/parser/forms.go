// Package parser extracts parameter-bearing structure from HTML response
// bodies. An HTML baseline is the one response shape where candidate names
// come from markup rather than error text.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FormField is one named form control.
type FormField struct {
	Name     string
	Type     string
	Required bool
}

// FormFields extracts named input, textarea, and select elements from an
// HTML document. Submit, button, and reset controls carry no parameter
// semantics and are skipped. Hidden fields are kept; a hidden token is
// still a parameter the endpoint reads.
func FormFields(html string) []FormField {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var fields []FormField
	doc.Find("input, textarea, select").Each(func(i int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if name == "" {
			return
		}

		typ := "text"
		if s.Is("textarea") {
			typ = "textarea"
		} else if s.Is("select") {
			typ = "select"
		} else if t, ok := s.Attr("type"); ok && t != "" {
			typ = strings.ToLower(t)
		}
		if typ == "submit" || typ == "button" || typ == "reset" {
			return
		}

		_, required := s.Attr("required")
		fields = append(fields, FormField{Name: name, Type: typ, Required: required})
	})
	return fields
}
