package policy

import (
	"strings"

	"github.com/risor-io/risor/object"
)

// isTruthy converts a Risor result to a boolean. Strings are false when
// empty or "false"; numbers when zero; collections when empty.
func isTruthy(obj object.Object) bool {
	switch o := obj.(type) {
	case *object.Bool:
		return o.Value()
	case *object.Int:
		return o.Value() != 0
	case *object.Float:
		return o.Value() != 0.0
	case *object.String:
		val := o.Value()
		return val != "" && strings.ToLower(val) != "false"
	case *object.List:
		return len(o.Value()) > 0
	case *object.Map:
		return len(o.Value()) > 0
	case *object.NilType:
		return false
	default:
		return obj.IsTruthy()
	}
}
