package checkfile

import (
	"gopkg.in/yaml.v3"

	errs "github.com/dylibso/modsurfer/errors"
)

// Marshal serializes a checkfile back to YAML. Marshal is a right
// inverse of the loader: parsing the output yields a structurally
// identical policy.
func Marshal(cf *Checkfile) ([]byte, error) {
	out, err := yaml.Marshal(cf)
	if err != nil {
		return nil, errs.Syntax(nil, "serialize checkfile", err)
	}
	return out, nil
}
