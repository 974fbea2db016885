package prompt

import (
	_ "embed"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

//go:embed templates/summarize.yaml
var summarizeTemplateRaw []byte

const passageInstruction = "Given a passage and a question, generate a clean answer in 2 to 3 short complete sentences. "

// Exemplar is one worked example shown to the model before the real conversation
type Exemplar struct {
	Conversation string `yaml:"conversation"`
	Summary      string `yaml:"summary"`
}

// SummaryTemplate is the versioned few-shot prompt for conversation summaries
type SummaryTemplate struct {
	Version     int        `yaml:"version"`
	Exemplars   []Exemplar `yaml:"exemplars"`
	Instruction string     `yaml:"instruction"`
}

// DefaultSummary returns the built-in summary template
func DefaultSummary() *SummaryTemplate {
	tmpl, err := ParseSummary(summarizeTemplateRaw)
	if err != nil {
		panic("embedded summary template is broken: " + err.Error())
	}
	return tmpl
}

// LoadSummary reads a summary template from a YAML file
func LoadSummary(path string) (*SummaryTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read summary template", goerr.V("path", path))
	}

	tmpl, err := ParseSummary(data)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid summary template", goerr.V("path", path))
	}
	return tmpl, nil
}

func ParseSummary(data []byte) (*SummaryTemplate, error) {
	var tmpl SummaryTemplate
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, goerr.Wrap(err, "failed to parse summary template")
	}

	if tmpl.Version <= 0 {
		return nil, goerr.New("summary template version must be positive", goerr.V("version", tmpl.Version))
	}
	if strings.TrimSpace(tmpl.Instruction) == "" {
		return nil, goerr.New("summary template has no instruction", goerr.V("version", tmpl.Version))
	}
	return &tmpl, nil
}

// Render builds the summarization prompt for a flattened conversation
func (t *SummaryTemplate) Render(conversation string) string {
	var b strings.Builder
	for _, ex := range t.Exemplars {
		b.WriteString("Conversation==" + ex.Conversation + "\n")
		b.WriteString("Summary==" + ex.Summary + "\n\n")
	}
	b.WriteString("Conversation==" + conversation + "\n")
	b.WriteString("Summary==\n\n\n")
	b.WriteString(t.Instruction)
	return b.String()
}

// Passage builds the prompt that answers query from a single retrieved passage
func Passage(passage, query string) string {
	return "Passage==" + passage + "\n\nQuestion==" + query + "\n\nAnswer==\n\n" + passageInstruction
}

// Dialogue builds the short term chat prompt from the history window and the new query
func Dialogue(window, query string) string {
	turn := "Me: " + query + "\nAI:"
	if window == "" {
		return turn
	}
	return window + "\n" + turn
}
