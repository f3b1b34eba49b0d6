package generate

import "text/template"

// The following fields are available in the job templates:
//
// Name             job name
// Dir              job working directory
// Exe              executable
// FrameworkConfig  framework configuration, empty for plain executables
// Self             path of this binary (grid jobs run it as a local DAG node)

var runScript = template.Must(template.New("run.sh").Parse(`#!/bin/bash
set -e
cd {{.Dir}}
{{if .FrameworkConfig -}}
{{.Exe}} {{.Dir}}/validation_cfg.py config={{.Dir}}/validation.json
{{- else -}}
{{.Exe}} -c {{.Dir}}/validation.json
{{- end}}
`))

var condorSubmit = template.Must(template.New("job.submit").Parse(`universe     = vanilla
executable   = {{.Dir}}/run.sh
initialdir   = {{.Dir}}
output       = {{.Dir}}/condor.out
error        = {{.Dir}}/condor.err
log          = {{.Dir}}/condor.log
getenv       = true

request_memory = 2500
+JobFlavour    = "workday"

queue
`))

var crabSubmit = template.Must(template.New("job.submit").Parse(`universe     = local
executable   = {{.Self}}
arguments    = crab job {{.Dir}} --name {{.Name}}
initialdir   = {{.Dir}}
output       = {{.Dir}}/crab.out
error        = {{.Dir}}/crab.err
log          = {{.Dir}}/condor.log
getenv       = true

queue
`))
