package vb

import "strings"

var keywords = map[string]bool{}

func init() {
	for _, k := range strings.Fields(`
		AddHandler AddressOf Alias And AndAlso As Boolean ByRef Byte ByVal
		Call Case Catch CBool CByte CChar CDate CDbl CDec Char CInt
		Class CLng CObj Const Continue CSByte CShort CSng CStr CType
		CUInt CULng CUShort Date Decimal Declare Default Delegate Dim
		DirectCast Do Double Each Else ElseIf End EndIf Enum Erase
		Error Event Exit False Finally For Friend Function Get GetType
		GetXMLNamespace Global GoTo Handles If Implements Imports In Inherits
		Integer Interface Is IsNot Let Lib Like Long Loop Me Mod Module
		MustInherit MustOverride MyBase MyClass NameOf Namespace Narrowing New
		Next Not Nothing NotInheritable NotOverridable Object Of On Operator
		Option Optional Or OrElse Overloads Overridable Overrides ParamArray
		Partial Private Property Protected Public RaiseEvent ReadOnly ReDim
		REM RemoveHandler Resume Return SByte Select Set Shadows Shared
		Short Single Static Step Stop String Structure Sub SyncLock Then
		Throw To True Try TryCast TypeOf UInteger ULong UShort Using
		Variant Wend When While Widening With WithEvents WriteOnly Xor`) {
		keywords[strings.ToLower(k)] = true
	}
}

// escape brackets identifiers that collide with a reserved word. VB
// identifiers are case-insensitive, so "error" and "ERROR" are escaped too.
func escape(name string) string {
	if keywords[strings.ToLower(name)] {
		return "[" + name + "]"
	}
	return name
}

// escapePath escapes every segment of a dotted type or namespace name.
func escapePath(name string) string {
	segs := strings.Split(name, ".")
	for i := range segs {
		segs[i] = escape(segs[i])
	}
	return strings.Join(segs, ".")
}

// rooted escapes name and, when global is set, anchors it at the global
// namespace.
func rooted(name string, global bool) string {
	if global {
		return "Global." + escapePath(name)
	}
	return escapePath(name)
}
