package snapshot

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func snapshotSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile snapshot schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Snapshot"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("snapshot schema has no #Snapshot definition")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// SchemaError lists every schema violation found in one file.
type SchemaError struct {
	File     string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("snapshot %s: schema: %s", e.File, strings.Join(e.Problems, "; "))
}

// validate checks decoded YAML against #Snapshot and collects all problems.
func validate(file string, raw any) error {
	ctx, def, err := snapshotSchema()
	if err != nil {
		return err
	}
	v := def.Unify(ctx.Encode(raw))
	err = v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var problems []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := strings.Join(e.Path(), "."); path != "" {
			msg = path + ": " + msg
		}
		problems = append(problems, msg)
	}
	if len(problems) == 0 {
		problems = []string{err.Error()}
	}
	return &SchemaError{File: file, Problems: problems}
}
