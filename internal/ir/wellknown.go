package ir

// wellKnown lists the google.protobuf types that have a dedicated JSON
// mapping, keyed by full name.
var wellKnown = map[string]string{
	"google.protobuf.Timestamp":   "Timestamp",
	"google.protobuf.Duration":    "Duration",
	"google.protobuf.FieldMask":   "FieldMask",
	"google.protobuf.Empty":       "Empty",
	"google.protobuf.Struct":      "Struct",
	"google.protobuf.Value":       "Value",
	"google.protobuf.ListValue":   "ListValue",
	"google.protobuf.Any":         "Any",
	"google.protobuf.DoubleValue": "DoubleValue",
	"google.protobuf.FloatValue":  "FloatValue",
	"google.protobuf.Int64Value":  "Int64Value",
	"google.protobuf.UInt64Value": "UInt64Value",
	"google.protobuf.Int32Value":  "Int32Value",
	"google.protobuf.UInt32Value": "UInt32Value",
	"google.protobuf.BoolValue":   "BoolValue",
	"google.protobuf.StringValue": "StringValue",
	"google.protobuf.BytesValue":  "BytesValue",
}

// WrapperKind returns the scalar carried by a google.protobuf wrapper type.
func WrapperKind(name string) (Kind, bool) {
	switch name {
	case "DoubleValue":
		return KindDouble, true
	case "FloatValue":
		return KindFloat, true
	case "Int64Value":
		return KindInt64, true
	case "UInt64Value":
		return KindUint64, true
	case "Int32Value":
		return KindInt32, true
	case "UInt32Value":
		return KindUint32, true
	case "BoolValue":
		return KindBool, true
	case "StringValue":
		return KindString, true
	case "BytesValue":
		return KindBytes, true
	}
	return 0, false
}
