package internal

import (
	"strings"
	"text/template"
)

var attributeQuerySQLTemplate = template.Must(template.New("attributeQuery").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(
	`SELECT {{.Projection}} FROM {{.Table}}` +
		`{{range .Joins}} {{.}}{{end}}` +
		`{{if .Conditions}} WHERE {{join .Conditions " AND "}}{{end}}` +
		`{{if .Orders}} ORDER BY {{join .Orders ", "}}{{end}}` +
		`{{if .Limit}} LIMIT {{.Limit}}{{end}}` +
		`{{if .Offset}} OFFSET {{.Offset}}{{end}}`,
))

type attributeQueryTemplateData struct {
	Projection string
	Table      string
	Joins      []string
	Conditions []string
	Orders     []string
	Limit      string
	Offset     string
}

func renderTemplate(tpl *template.Template, data any) (string, error) {
	var builder strings.Builder
	if err := tpl.Execute(&builder, data); err != nil {
		return "", err
	}
	return builder.String(), nil
}
