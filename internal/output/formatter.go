package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rgehrsitz/costshare/internal/audit"
	"github.com/rgehrsitz/costshare/internal/domain"
)

// Failure is a claim the calculate command could not price
type Failure struct {
	Claim string `json:"claim"`
	Error string `json:"error"`
}

// Results is everything a command hands to a formatter
type Results struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Breakdowns  []domain.CostBreakdown `json:"breakdowns,omitempty"`
	Failures    []Failure              `json:"failures,omitempty"`
	Audit       *audit.Report          `json:"audit,omitempty"`
}

// Formatter renders results in one output format
type Formatter interface {
	Name() string
	Format(results *Results) ([]byte, error)
}

// FormatterFunc adapts a function to the Formatter interface
type FormatterFunc struct {
	ID string
	F  func(results *Results) ([]byte, error)
}

func (f FormatterFunc) Name() string { return f.ID }

func (f FormatterFunc) Format(results *Results) ([]byte, error) { return f.F(results) }

var formatters = map[string]Formatter{
	"console": ConsoleFormatter{},
	"json":    JSONFormatter{},
	"csv":     CSVFormatter{},
}

var formatAliases = map[string]string{
	"table": "console",
	"text":  "console",
}

// GetFormatterByName returns the formatter registered under name or alias, or nil
func GetFormatterByName(name string) Formatter {
	name = strings.ToLower(strings.TrimSpace(name))
	if target, ok := formatAliases[name]; ok {
		name = target
	}
	return formatters[name]
}

// AvailableFormatterNames lists the registered formatter names
func AvailableFormatterNames() []string {
	names := make([]string, 0, len(formatters))
	for name := range formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AvailableFormatAliases lists the accepted aliases
func AvailableFormatAliases() []string {
	aliases := make([]string, 0, len(formatAliases))
	for alias := range formatAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// WriteFormatted renders results and writes them to a timestamped file in the
// working directory, returning the file name
func WriteFormatted(f Formatter, results *Results, ext string) (string, error) {
	data, err := f.Format(results)
	if err != nil {
		return "", err
	}
	stamp := results.GeneratedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	filename := fmt.Sprintf("costshare_report_%s.%s", stamp.Format("20060102_150405"), ext)
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return filename, nil
}
