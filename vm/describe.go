package vm

import (
	"fmt"
	"io"
	"text/template"

	"github.com/Masterminds/sprig"
)

const describeTemplate = `{{- /* one line per scheduled node */ -}}
schedule generation {{.Generation}}: {{len .Entries}} nodes, {{.NumBuffers}} buffers of {{.MaxBlockFrames}} frames
{{- range $i, $e := .Entries}}
{{printf "%3d" $i}} {{printf "%-8s" $e.ID.String}} {{printf "%-10s" ($e.Name | default "?" | trunc 10)}} {{printf "%-6s" $e.Role.String}} in [{{$e.Inputs | join " "}}] out [{{$e.Outputs | join " "}}]{{if $e.Clear}} clear [{{$e.Clear | join " "}}]{{end}}
{{- end}}
`

var describeTmpl = template.Must(template.New("schedule").Funcs(sprig.TxtFuncMap()).Parse(describeTemplate))

// Describe writes a human readable listing of the schedule: the nodes in
// execution order with the buffer slots bound to their ports.
func Describe(w io.Writer, s *Schedule) error {
	if err := describeTmpl.Execute(w, s); err != nil {
		return fmt.Errorf("describe schedule: %w", err)
	}
	return nil
}
