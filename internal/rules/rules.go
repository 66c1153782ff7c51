// Package rules loads economy rules from CUE documents.
//
// A rules document is a plain CUE (or JSON) struct, for example:
//
//	max_items:         500
//	sticker_wear_step: 250
//
// It is unified with the closed #Rules definition in schema.cue, so unknown
// fields and out-of-range values fail. Fields left out keep the values of
// inventory.DefaultRules.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/invsync/internal/inventory"
)

//go:embed schema.cue
var schemaCUE string

// ErrInvalid wraps every rejected rules document.
var ErrInvalid = errors.New("invalid rules")

// Load reads and parses the rules file at path.
func Load(path string) (inventory.Rules, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return inventory.Rules{}, fmt.Errorf("load rules: %w", err)
	}
	return Parse(src, path)
}

// Parse validates src against the rules schema. name is used in error
// positions.
func Parse(src []byte, name string) (inventory.Rules, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return inventory.Rules{}, fmt.Errorf("compile rules schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Rules"))

	doc := ctx.CompileBytes(src, cue.Filename(name))
	if err := doc.Err(); err != nil {
		return inventory.Rules{}, invalid(name, err)
	}

	v := def.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return inventory.Rules{}, invalid(name, err)
	}

	rules := inventory.DefaultRules()
	if err := v.Decode(&rules); err != nil {
		return inventory.Rules{}, invalid(name, err)
	}
	return rules, nil
}

func invalid(name string, err error) error {
	detail := strings.TrimSpace(cueerrors.Details(err, nil))
	return fmt.Errorf("%w: %s: %s", ErrInvalid, name, detail)
}
