// internal/cli/validate.go
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cmux-cli/uiverify/internal/scenario"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files or dirs...]",
	Short: "Check scenario files without opening a browser",
	Long: `Validate parses every scenario file and reports all structural, schema and
domain errors with their paths (e.g. steps[2].target.name).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := scenario.Files(scenarioPaths(args))
		if err != nil {
			return &UsageError{Message: err.Error(), Err: err}
		}
		if len(files) == 0 {
			return NewUsageError("no scenario files found")
		}

		opts := LoadOptions()
		res := ValidateResult{Files: make([]FileValidation, 0, len(files))}
		for _, f := range files {
			fv := FileValidation{Path: f, Valid: true}
			sc, err := scenario.LoadFile(f, opts)
			if sc != nil {
				fv.Scenario = sc.Name
				fv.Steps = sc.Count()
			}
			if err != nil {
				fv.Valid = false
				var verrs *scenario.ValidationErrors
				if errors.As(err, &verrs) {
					fv.Errors = verrs.Errors
				} else {
					fv.Errors = []*scenario.ValidationError{{Phase: scenario.PhaseStructural, Message: err.Error()}}
				}
				res.Invalid++
			}
			res.Files = append(res.Files, fv)
		}

		if err := OutputResult(res); err != nil {
			return err
		}
		if res.Invalid > 0 {
			return NewUsageError(fmt.Sprintf("%d of %d scenario file(s) invalid", res.Invalid, len(files)))
		}
		return nil
	},
}

// LoadOptions returns scenario variables from the loaded config.
func LoadOptions() scenario.LoadOptions {
	return scenario.LoadOptions{
		BaseURL:  cfg.BaseURL(),
		Email:    cfg.Email(),
		Password: cfg.Password(),
		Vars:     cfg.ScenarioVars(),
	}
}

// ValidateResult is the output of the validate command.
type ValidateResult struct {
	Files   []FileValidation `json:"files"`
	Invalid int              `json:"invalid"`
}

type FileValidation struct {
	Path     string                      `json:"path"`
	Scenario string                      `json:"scenario,omitempty"`
	Steps    int                         `json:"steps"`
	Valid    bool                        `json:"valid"`
	Errors   []*scenario.ValidationError `json:"errors,omitempty"`
}

func (r ValidateResult) TextOutput() string {
	var b strings.Builder
	for _, f := range r.Files {
		if f.Valid {
			fmt.Fprintf(&b, "ok       %s (%s, %d steps)\n", f.Path, f.Scenario, f.Steps)
			continue
		}
		fmt.Fprintf(&b, "invalid  %s\n", f.Path)
		for _, e := range f.Errors {
			fmt.Fprintf(&b, "         %s\n", e)
		}
	}
	fmt.Fprintf(&b, "%d file(s), %d invalid", len(r.Files), r.Invalid)
	return b.String()
}

var listCmd = &cobra.Command{
	Use:   "list [files or dirs...]",
	Short: "List scenarios and their step counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarios, err := loadScenarios(args, LoadOptions())
		if err != nil {
			return err
		}
		out := ListResult{Scenarios: make([]ScenarioInfo, 0, len(scenarios))}
		for _, sc := range scenarios {
			out.Scenarios = append(out.Scenarios, ScenarioInfo{
				Name:        sc.Name,
				Description: sc.Description,
				Source:      sc.Source,
				Steps:       sc.Count(),
			})
		}
		return OutputResult(out)
	},
}

// ListResult is the output of the list command.
type ListResult struct {
	Scenarios []ScenarioInfo `json:"scenarios"`
}

type ScenarioInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
	Steps       int    `json:"steps"`
}

func (r ListResult) TextOutput() string {
	var b strings.Builder
	for i, sc := range r.Scenarios {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-32s %3d steps  %s", sc.Name, sc.Steps, sc.Source)
	}
	return b.String()
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for scenario files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := scenario.GenerateJSONSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}
