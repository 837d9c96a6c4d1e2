package vb

import (
	"fmt"

	"github.com/jptrs93/protohttp/internal/ir"
)

var scalarTypes = map[ir.Kind]string{
	ir.KindDouble:   "Double",
	ir.KindFloat:    "Single",
	ir.KindInt32:    "Integer",
	ir.KindSint32:   "Integer",
	ir.KindSfixed32: "Integer",
	ir.KindInt64:    "Long",
	ir.KindSint64:   "Long",
	ir.KindSfixed64: "Long",
	ir.KindUint32:   "UInteger",
	ir.KindFixed32:  "UInteger",
	ir.KindUint64:   "ULong",
	ir.KindFixed64:  "ULong",
	ir.KindBool:     "Boolean",
	ir.KindString:   "String",
	ir.KindBytes:    "Byte()",
}

// wellKnownType maps a google.protobuf type to the .NET type Newtonsoft
// deserializes its JSON form into. linq reports whether the type lives in
// Newtonsoft.Json.Linq.
func wellKnownType(name string) (typ string, linq bool, err error) {
	switch name {
	case "Timestamp":
		return "DateTime", false, nil
	case "Duration", "FieldMask":
		return "String", false, nil
	case "Empty":
		return "Object", false, nil
	case "Struct", "Any":
		return "JObject", true, nil
	case "Value":
		return "JToken", true, nil
	case "ListValue":
		return "JArray", true, nil
	}
	kind, ok := ir.WrapperKind(name)
	if !ok {
		return "", false, fmt.Errorf("no mapping for google.protobuf.%s", name)
	}
	switch kind {
	case ir.KindString, ir.KindBytes:
		return scalarTypes[kind], false, nil
	}
	return "Nullable(Of " + scalarTypes[kind] + ")", false, nil
}
