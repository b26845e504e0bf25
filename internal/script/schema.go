package script

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// SchemaError is a script that does not match the schema. Pos points into
// the script file when CUE can tell where the problem is.
type SchemaError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	path := e.Path
	if path == "" {
		path = "script"
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), path, e.Message)
	}
	return fmt.Sprintf("%s: %s", path, e.Message)
}

// ValidateSchema checks a YAML script against the embedded CUE schema.
func ValidateSchema(data []byte, filename string) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling script schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Script"))

	f, err := cueyaml.Extract(filename, data)
	if err != nil {
		return formatSchemaError(err, filename)
	}
	doc := ctx.BuildFile(f)
	if err := doc.Err(); err != nil {
		return formatSchemaError(err, filename)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return formatSchemaError(err, filename)
	}
	return nil
}

// formatSchemaError keeps the first CUE error, preferring a position inside
// the script over one inside the schema.
func formatSchemaError(err error, filename string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}

	first := errs[0]
	format, args := first.Msg()
	se := &SchemaError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
	for _, pos := range cueerrors.Positions(first) {
		if pos.Filename() == filename {
			se.Pos = pos
			break
		}
	}
	return se
}
