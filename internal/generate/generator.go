package generate

import (
	"fmt"

	"github.com/jptrs93/protohttp/internal/ir"
)

type OutputFile struct {
	Path    string
	Content []byte
}

// Profile selects the call shape of generated clients.
type Profile string

const (
	// ProfileAsync targets HttpClient with async overloads and injected
	// client instances.
	ProfileAsync Profile = "async"
	// ProfileSync targets HttpWebRequest with blocking calls.
	ProfileSync Profile = "sync"
)

func (p Profile) Valid() bool {
	return p == ProfileAsync || p == ProfileSync
}

func (p *Profile) UnmarshalText(text []byte) error {
	v := Profile(text)
	if !v.Valid() {
		return fmt.Errorf("unknown profile %q (want async or sync)", text)
	}
	*p = v
	return nil
}

func (p Profile) MarshalText() ([]byte, error) { return []byte(p), nil }

func (p Profile) String() string { return string(p) }

type Options struct {
	Out     string
	Profile Profile
}

// Generator produces whole-program side outputs.
type Generator interface {
	Name() string
	Generate(prog *ir.Program, options Options) ([]OutputFile, error)
}

// Backend renders client source one schema file at a time. Emit runs per
// file and may run concurrently; it returns nil for files with nothing to
// emit. Render runs after Extract has decided whether each directory
// shares a utility.
type Backend interface {
	Name() string
	Emit(prog *ir.Program, file int) (*Unit, error)
	Render(u *Unit) (OutputFile, error)
	RenderUtility(s *SharedUtility) (OutputFile, error)
}

// Unit is one emitted schema file before rendering.
type Unit struct {
	// Path is the output path relative to Options.Out, slash separated.
	Path      string
	Dir       string
	Namespace string
	Source    string
	Clients   int
	// Helper is the rendered request helper; identical for every unit of
	// one profile.
	Helper string
	Data   any
	Shared *SharedUtility
}

type SharedUtility struct {
	Name      string
	Namespace string
	Path      string
	Profile   Profile
	Users     []string
}

// QualifiedName is how code in namespace ns refers to the utility. From
// another namespace the name is the full path and global is true, like
// ir.Program.Qualify.
func (s *SharedUtility) QualifiedName(ns string) (name string, global bool) {
	if ns == s.Namespace {
		return s.Name, false
	}
	return s.Namespace + "." + s.Name, true
}
