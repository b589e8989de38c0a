package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource is the CUE schema every monty.toml must satisfy. The
// definition is closed, so unknown keys are rejected along with
// out-of-range values.
const schemaSource = `
#Manifest: {
	project?: {
		name?:    string
		version?: string
	}
	modules?: {
		paths?: [...string]
		entry?: string
	}
	interp?: {
		"max-depth"?:     int & >0
		profile?:         bool
		"hot-threshold"?: int & >0
	}
	server?: {
		listen?: string
	}
	store?: {
		path?:           string
		"profile-path"?: string
	}
	log?: {
		verbosity?: int & >=-1 & <=2
	}
}
`

var manifestSchema cue.Value

func init() {
	v := cuecontext.New().CompileString(schemaSource)
	if err := v.Err(); err != nil {
		panic(fmt.Sprintf("manifest: failed to compile schema: %v", err))
	}
	manifestSchema = v.LookupPath(cue.ParsePath("#Manifest"))
	if err := manifestSchema.Err(); err != nil {
		panic(fmt.Sprintf("manifest: schema missing #Manifest: %v", err))
	}
}

// validate unifies the decoded TOML tree with the schema definition.
func validate(raw map[string]any) error {
	v := manifestSchema.Context().Encode(raw)
	if err := v.Err(); err != nil {
		return err
	}
	if err := manifestSchema.Unify(v).Validate(cue.Concrete(false)); err != nil {
		return err
	}
	return nil
}
