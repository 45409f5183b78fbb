package hmmer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"PfamSurvey/internal/config"
	"PfamSurvey/internal/domain"
)

var scriptTemplate = template.Must(template.New("script").Funcs(template.FuncMap{
	"quote": shellQuote,
}).Parse(`#!/bin/bash
{{- with .Slurm}}{{if .Enabled}}
#SBATCH --job-name={{.JobName}}
#SBATCH --nodes={{.Nodes}}
#SBATCH --tasks-per-node={{.TasksPerNode}}
#SBATCH --mem={{.Memory}}
#SBATCH --time={{.Time}}
{{- if .MailType}}
#SBATCH --mail-type={{.MailType}}
{{- end}}
{{- if .MailUser}}
#SBATCH --mail-user={{.MailUser}}
{{- end}}
{{- end}}{{end}}

status=0
{{range .Pairs}}
{{quote $.Binary}} --tblout {{quote .OutputPath}} -E {{$.EValue}} --noali {{quote .ProfilePath}} {{quote .SequencePath}} || { echo "search failed: "{{quote .OutputPath}} >&2; status=1; }
{{- end}}

exit $status
`))

type scriptData struct {
	Binary string
	EValue string
	Slurm  config.SlurmConfig
	Pairs  []domain.SearchPair
}

// RenderScript produces a bash script with one search invocation per pair.
// The script exits non-zero when any invocation fails but always runs every pair.
func RenderScript(cfg config.SearchConfig, pairs []domain.SearchPair) ([]byte, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("search binary is not configured")
	}
	var buf bytes.Buffer
	err := scriptTemplate.Execute(&buf, scriptData{
		Binary: cfg.Binary,
		EValue: strconv.FormatFloat(cfg.EValue, 'g', -1, 64),
		Slurm:  cfg.Slurm,
		Pairs:  pairs,
	})
	if err != nil {
		return nil, fmt.Errorf("render script: %w", err)
	}
	return buf.Bytes(), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
