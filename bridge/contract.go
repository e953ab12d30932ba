package bridge

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrContract marks a mismatch between what the host expects a guest export to look like
	// and what the guest actually exports. It is a programming error, not a user-facing one.
	ErrContract = errors.New("runtime contract violation")
	// ErrNullResult is returned when the guest leaves a result slot null.
	ErrNullResult = errors.New("runtime returned a null result")
	// ErrInvalidEncoding is returned when a guest-produced string is not valid UTF-8.
	ErrInvalidEncoding = errors.New("runtime returned invalid UTF-8")
	// ErrInteriorNUL is returned when a string cannot be represented as a NUL-terminated buffer.
	ErrInteriorNUL = errors.New("string contains an interior NUL")
)

// DefaultQualifier is the module-qualified type name the installer guest exports its functions under.
const DefaultQualifier = "HeliosphereInstaller.Installer, heliosphere-installer"

// Contract function names.
const (
	FuncSetCallback     = "SetCopyToCStringFunctionPtr"
	FuncMakePlugin      = "MakePlugin"
	FuncMakeRepo        = "MakeRepo"
	FuncFillOutManifest = "FillOutManifest"
	FuncIsPathValid     = "IsPathValid"
)

// CallbackName is the name under which backends expose the string-producing callback to the guest.
const CallbackName = "copy_to_c_string"

// ReturnKind describes how a guest function's direct return value crosses the boundary.
type ReturnKind int

const (
	// ReturnNone means the function returns nothing.
	ReturnNone ReturnKind = iota
	// ReturnString means the function returns a guest-allocated narrow string, owned by the caller.
	ReturnString
	// ReturnByte means the function returns a single byte (used for booleans).
	ReturnByte
	// ReturnIgnored means the function may return a pointer that the host never reads.
	ReturnIgnored
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnNone:
		return "none"
	case ReturnString:
		return "string"
	case ReturnByte:
		return "byte"
	case ReturnIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("ReturnKind(%d)", int(k))
	}
}

// Signature describes the marshaling contract of one exported guest function.
//
// Every string argument crosses as a (pointer, length) pair of UTF-8 bytes without a terminator.
// Out slots are pointer-sized cells the guest fills with guest-allocated strings. When Callback is
// set the host passes a handle to its string-producing callback as the only argument.
type Signature struct {
	Qualifier string
	Name      string
	Strings   int
	Outputs   int
	Callback  bool
	Returns   ReturnKind
}

// Params returns the number of raw parameters the function takes in the pointer ABI.
func (s Signature) Params() int {
	n := s.Strings*2 + s.Outputs
	if s.Callback {
		n++
	}
	return n
}

func (s Signature) String() string {
	return fmt.Sprintf("%s::%s(strings=%d, outputs=%d, callback=%t) -> %s",
		s.Qualifier, s.Name, s.Strings, s.Outputs, s.Callback, s.Returns)
}

// Contract returns the full set of functions the installer guest must export under qualifier.
func Contract(qualifier string) []Signature {
	if qualifier == "" {
		qualifier = DefaultQualifier
	}
	return []Signature{
		{Qualifier: qualifier, Name: FuncSetCallback, Callback: true, Returns: ReturnNone},
		{Qualifier: qualifier, Name: FuncMakePlugin, Strings: 2, Returns: ReturnString},
		{Qualifier: qualifier, Name: FuncMakeRepo, Strings: 1, Returns: ReturnString},
		{Qualifier: qualifier, Name: FuncFillOutManifest, Strings: 3, Outputs: 2, Returns: ReturnIgnored},
		{Qualifier: qualifier, Name: FuncIsPathValid, Strings: 1, Returns: ReturnByte},
	}
}

// Qualifier is a parsed "TypeName, ModuleName" pair.
type Qualifier struct {
	TypeName string
	Module   string
}

// ParseQualifier splits a module-qualified type name.
func ParseQualifier(s string) (Qualifier, error) {
	typeName, module, ok := strings.Cut(s, ",")
	typeName = strings.TrimSpace(typeName)
	module = strings.TrimSpace(module)
	if !ok || typeName == "" || module == "" {
		return Qualifier{}, fmt.Errorf("%w: qualifier %q must have the form \"TypeName, ModuleName\"", ErrContract, s)
	}
	return Qualifier{TypeName: typeName, Module: module}, nil
}
