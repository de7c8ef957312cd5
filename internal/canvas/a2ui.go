package canvas

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidComponent is returned when a component fails validation.
var ErrInvalidComponent = errors.New("invalid component")

// ComponentType identifies an A2UI variant.
type ComponentType string

const (
	ComponentCard      ComponentType = "card"
	ComponentChart     ComponentType = "chart"
	ComponentForm      ComponentType = "form"
	ComponentButton    ComponentType = "button"
	ComponentTextField ComponentType = "text_field"
	ComponentDataTable ComponentType = "data_table"
	ComponentCodeBlock ComponentType = "code_block"
	ComponentMarkdown  ComponentType = "markdown"
	ComponentImage     ComponentType = "image"
	ComponentProgress  ComponentType = "progress"
	ComponentStatus    ComponentType = "status"
)

// Component describes one A2UI element. Type selects the variant and the
// matching payload field must be set; the other payloads stay nil.
type Component struct {
	Type      ComponentType  `json:"type"`
	Card      *CardSpec      `json:"card,omitempty"`
	Chart     *ChartSpec     `json:"chart,omitempty"`
	Form      *FormSpec      `json:"form,omitempty"`
	Button    *ButtonSpec    `json:"button,omitempty"`
	TextField *TextFieldSpec `json:"text_field,omitempty"`
	DataTable *DataTableSpec `json:"data_table,omitempty"`
	CodeBlock *CodeBlockSpec `json:"code_block,omitempty"`
	Markdown  *MarkdownSpec  `json:"markdown,omitempty"`
	Image     *ImageSpec     `json:"image,omitempty"`
	Progress  *ProgressSpec  `json:"progress,omitempty"`
	Status    *StatusSpec    `json:"status,omitempty"`
}

// CardSpec renders a titled panel with optional body text.
type CardSpec struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// ChartSpec renders one or more series. Kind is line, bar, or pie.
type ChartSpec struct {
	Kind   string        `json:"kind"`
	Title  string        `json:"title,omitempty"`
	Series []ChartSeries `json:"series"`
}

// ChartSeries is one labelled sequence of values.
type ChartSeries struct {
	Label  string    `json:"label,omitempty"`
	Points []float64 `json:"points"`
}

// FormSpec renders an input form whose submission comes back as a
// form_submit interaction.
type FormSpec struct {
	Fields      []FormField `json:"fields"`
	SubmitLabel string      `json:"submit_label,omitempty"`
}

// FormField is one input in a form. Kind defaults to a plain text input.
type FormField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label,omitempty"`
	Kind     string   `json:"kind,omitempty"`
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// ButtonSpec renders a clickable button. Action is echoed back on click.
type ButtonSpec struct {
	Label  string `json:"label"`
	Action string `json:"action,omitempty"`
}

// TextFieldSpec renders a single editable text input.
type TextFieldSpec struct {
	Label       string `json:"label"`
	Value       string `json:"value,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// DataTableSpec renders tabular rows under fixed column headers.
type DataTableSpec struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows,omitempty"`
}

// CodeBlockSpec renders preformatted code with optional syntax highlighting.
type CodeBlockSpec struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// MarkdownSpec renders a block of markdown text.
type MarkdownSpec struct {
	Content string `json:"content"`
}

// ImageSpec renders an image by URL.
type ImageSpec struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// ProgressSpec renders a progress indicator. Value is a percentage in
// [0, 100].
type ProgressSpec struct {
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}

// StatusSpec renders a status badge. State is ok, warn, error, or info.
type StatusSpec struct {
	State string `json:"state"`
	Text  string `json:"text,omitempty"`
}

var chartKinds = map[string]bool{
	"line": true,
	"bar":  true,
	"pie":  true,
}

var statusStates = map[string]bool{
	"ok":    true,
	"warn":  true,
	"error": true,
	"info":  true,
}

// Validate checks that the component carries the payload its type requires
// and that the payload's required fields are filled in.
func (c Component) Validate() error {
	switch c.Type {
	case ComponentCard:
		if c.Card == nil {
			return payloadMissing(c.Type)
		}
		if strings.TrimSpace(c.Card.Title) == "" {
			return fmt.Errorf("%w: card title is required", ErrInvalidComponent)
		}
	case ComponentChart:
		if c.Chart == nil {
			return payloadMissing(c.Type)
		}
		if !chartKinds[c.Chart.Kind] {
			return fmt.Errorf("%w: unknown chart kind %q", ErrInvalidComponent, c.Chart.Kind)
		}
		if len(c.Chart.Series) == 0 {
			return fmt.Errorf("%w: chart needs at least one series", ErrInvalidComponent)
		}
	case ComponentForm:
		if c.Form == nil {
			return payloadMissing(c.Type)
		}
		if len(c.Form.Fields) == 0 {
			return fmt.Errorf("%w: form needs at least one field", ErrInvalidComponent)
		}
		for i, field := range c.Form.Fields {
			if strings.TrimSpace(field.Name) == "" {
				return fmt.Errorf("%w: form field %d has no name", ErrInvalidComponent, i)
			}
		}
	case ComponentButton:
		if c.Button == nil {
			return payloadMissing(c.Type)
		}
		if strings.TrimSpace(c.Button.Label) == "" {
			return fmt.Errorf("%w: button label is required", ErrInvalidComponent)
		}
	case ComponentTextField:
		if c.TextField == nil {
			return payloadMissing(c.Type)
		}
		if strings.TrimSpace(c.TextField.Label) == "" {
			return fmt.Errorf("%w: text field label is required", ErrInvalidComponent)
		}
	case ComponentDataTable:
		if c.DataTable == nil {
			return payloadMissing(c.Type)
		}
		if len(c.DataTable.Columns) == 0 {
			return fmt.Errorf("%w: data table needs at least one column", ErrInvalidComponent)
		}
	case ComponentCodeBlock:
		if c.CodeBlock == nil {
			return payloadMissing(c.Type)
		}
		if c.CodeBlock.Code == "" {
			return fmt.Errorf("%w: code block is empty", ErrInvalidComponent)
		}
	case ComponentMarkdown:
		if c.Markdown == nil {
			return payloadMissing(c.Type)
		}
		if strings.TrimSpace(c.Markdown.Content) == "" {
			return fmt.Errorf("%w: markdown content is empty", ErrInvalidComponent)
		}
	case ComponentImage:
		if c.Image == nil {
			return payloadMissing(c.Type)
		}
		if strings.TrimSpace(c.Image.URL) == "" {
			return fmt.Errorf("%w: image url is required", ErrInvalidComponent)
		}
	case ComponentProgress:
		if c.Progress == nil {
			return payloadMissing(c.Type)
		}
		if c.Progress.Value < 0 || c.Progress.Value > 100 {
			return fmt.Errorf("%w: progress value %.1f is outside [0, 100]", ErrInvalidComponent, c.Progress.Value)
		}
	case ComponentStatus:
		if c.Status == nil {
			return payloadMissing(c.Type)
		}
		if !statusStates[c.Status.State] {
			return fmt.Errorf("%w: unknown status state %q", ErrInvalidComponent, c.Status.State)
		}
	case "":
		return fmt.Errorf("%w: type is empty", ErrInvalidComponent)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidComponent, c.Type)
	}
	return nil
}

func payloadMissing(t ComponentType) error {
	return fmt.Errorf("%w: %s payload is missing", ErrInvalidComponent, t)
}
