package generate

import (
	"bytes"
	"fmt"
	"text/template"
)

// TemplateRegistry holds all parsed text templates for mock generation.
// Create a registry using NewTemplateRegistry() to initialize all templates.
type TemplateRegistry struct {
	namespaceOpenTmpl  *template.Template
	namespaceCloseTmpl *template.Template
	classTmpl          *template.Template
	mockMethodTmpl     *template.Template
	forwarderTmpl      *template.Template
}

// NewTemplateRegistry creates and initializes a new template registry with all templates parsed.
// Templates are hardcoded constants, so parsing cannot fail at runtime.
func NewTemplateRegistry() *TemplateRegistry {
	registry := &TemplateRegistry{}

	templates := []struct {
		target  **template.Template
		name    string
		content string
	}{
		{&registry.namespaceOpenTmpl, "namespaceOpen", tmplNamespaceOpen},
		{&registry.namespaceCloseTmpl, "namespaceClose", tmplNamespaceClose},
		{&registry.classTmpl, "class", tmplClass},
		{&registry.mockMethodTmpl, "mockMethod", tmplMockMethod},
		{&registry.forwarderTmpl, "forwarder", tmplForwarder},
	}

	for _, def := range templates {
		*def.target = template.Must(template.New(def.name).Parse(def.content))
	}

	return registry
}

// WriteClass writes the mock class definition.
func (r *TemplateRegistry) WriteClass(buf *bytes.Buffer, data classData) {
	execute(r.classTmpl, buf, data)
}

// WriteForwarder writes an explicit override that forwards to a mock method.
func (r *TemplateRegistry) WriteForwarder(buf *bytes.Buffer, data forwarderData) {
	execute(r.forwarderTmpl, buf, data)
}

// WriteMockMethod writes one MOCK_METHOD declaration.
func (r *TemplateRegistry) WriteMockMethod(buf *bytes.Buffer, data mockMethodData) {
	execute(r.mockMethodTmpl, buf, data)
}

// WriteNamespaceClose writes the closing lines for the given namespaces, innermost first.
func (r *TemplateRegistry) WriteNamespaceClose(buf *bytes.Buffer, scope []string) {
	execute(r.namespaceCloseTmpl, buf, reversed(scope))
}

// WriteNamespaceOpen writes the opening lines for the given namespaces, outermost first.
func (r *TemplateRegistry) WriteNamespaceOpen(buf *bytes.Buffer, scope []string) {
	execute(r.namespaceOpenTmpl, buf, scope)
}

func execute(tmpl *template.Template, buf *bytes.Buffer, data any) {
	err := tmpl.Execute(buf, data)
	if err != nil {
		panic(fmt.Sprintf("failed to execute %s template: %v", tmpl.Name(), err))
	}
}

func reversed(scope []string) []string {
	out := make([]string, len(scope))
	for i, name := range scope {
		out[len(scope)-1-i] = name
	}

	return out
}

type classData struct {
	TemplateHeader string // "template <typename Elem>" or empty
	Name           string
	Base           string
	Create         string
	CreateStrict   string
	Destructor     string // empty when the interface declares none
	Members        []string
	Indent         string
}

type mockMethodData struct {
	Return string
	Name   string
	Params string
	Specs  string
}

type forwarderData struct {
	Return     string
	Name       string
	Params     string
	Qualifiers string // leading space included
	Target     string // receiver expression, e.g. "const_cast<MockI*>(this)->"
	Label      string
	Args       string
}

const tmplNamespaceOpen = `{{range .}}namespace {{.}} {
{{end}}`

const tmplNamespaceClose = `{{range .}}} // namespace {{.}}
{{end}}`

const tmplClass = `{{if .TemplateHeader}}{{.TemplateHeader}}
{{end}}class {{.Name}} : public {{.Base}} {
public:
{{.Indent}}static std::shared_ptr<{{.Name}}> {{.Create}}() {
{{.Indent}}{{.Indent}}return std::make_shared<::testing::NiceMock<{{.Name}}>>();
{{.Indent}}}

{{.Indent}}static std::shared_ptr<{{.Name}}> {{.CreateStrict}}() {
{{.Indent}}{{.Indent}}return std::make_shared<::testing::StrictMock<{{.Name}}>>();
{{.Indent}}}
{{if .Destructor}}
{{.Indent}}{{.Destructor}}
{{end}}{{if .Members}}
{{range .Members}}{{$.Indent}}{{.}}
{{end}}{{end}}};
`

const tmplMockMethod = `MOCK_METHOD({{.Return}}, {{.Name}}, ({{.Params}}), ({{.Specs}}));`

const tmplForwarder = `{{.Return}} {{.Name}}({{.Params}}){{.Qualifiers}} override { ` +
	`return {{.Target}}{{.Label}}({{.Args}}); }`
