package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

type SQLGenerationData struct {
	Dialect  string
	Schema   string
	History  string
	Question string
}

type SQLValidationData struct {
	Dialect string
	Schema  string
	SQL     string
}

type AnswerData struct {
	Dialect  string
	Schema   string
	History  string
	Question string
	SQL      string
	Results  string
}

func RenderSQLGeneration(data SQLGenerationData) (systemPrompt, userPrompt string, err error) {
	return renderPair("sql_generation", data)
}

func RenderSQLValidation(data SQLValidationData) (systemPrompt, userPrompt string, err error) {
	return renderPair("sql_validation", data)
}

func RenderAnswer(data AnswerData) (systemPrompt, userPrompt string, err error) {
	return renderPair("answer", data)
}

func renderPair(name string, data any) (string, string, error) {
	systemPrompt, err := render(name+"_system.tmpl", data)
	if err != nil {
		return "", "", err
	}
	userPrompt, err := render(name+"_user.tmpl", data)
	if err != nil {
		return "", "", err
	}
	return systemPrompt, userPrompt, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
