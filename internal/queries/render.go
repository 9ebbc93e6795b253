package queries

import (
	"fmt"

	"github.com/flosch/pongo2/v6"
)

func init() {
	// queries are SQL, not HTML
	pongo2.SetAutoescape(false)
}

// Render renders a query written with Jinja syntax using params.
func Render(query string, params map[string]any) (string, error) {
	tpl, err := pongo2.FromString(query)
	if err != nil {
		return "", fmt.Errorf("parse query template: %w", err)
	}
	out, err := tpl.Execute(pongo2.Context(params))
	if err != nil {
		return "", fmt.Errorf("render query: %w", err)
	}
	return out, nil
}
