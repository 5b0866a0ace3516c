package billing

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultFileNameTemplate reproduces the historical workbook naming scheme.
const DefaultFileNameTemplate = "{{ .AccountID }}_{{ .Alias }}_{{ .Month }}_Billing.xlsx"

// FileNameData is the data passed to the workbook file name template.
type FileNameData struct {
	AccountID string
	Alias     string
	Month     string // YYYYMM
	Profile   string
}

// ParseFileNameTemplate compiles a workbook file name template with the
// sprig function map.
func ParseFileNameTemplate(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultFileNameTemplate
	}
	tmpl, err := template.New("filename").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse file name template: %w", err)
	}
	return tmpl, nil
}

// FileName renders tmpl with data. Path separators in the result are
// replaced so the name always stays inside the output directory.
func FileName(tmpl *template.Template, data FileNameData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render file name: %w", err)
	}
	name := strings.TrimSpace(buf.String())
	name = strings.NewReplacer("/", "-", `\`, "-").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("file name template rendered an empty name")
	}
	return name, nil
}
