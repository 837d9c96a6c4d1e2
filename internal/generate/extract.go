package generate

import (
	"fmt"
	"path"
	"sort"
	"unicode"

	"github.com/jptrs93/protohttp/internal/ir"
	"github.com/jptrs93/protohttp/internal/schema"

	"github.com/tidwall/btree"
)

type ExtractOptions struct {
	// RootName names the utility of the top-level output directory.
	RootName string
	Profile  Profile
	Ext      string
}

// Extract decides, per output directory, whether the request helper is
// factored into a shared utility. It must only run once every unit has
// been emitted. A directory shares a utility when it holds more than one
// unit and at least one client; each unit in it gets Shared set.
func Extract(units []*Unit, opts ExtractOptions) ([]*SharedUtility, error) {
	var dirs btree.Map[string, []*Unit]
	for _, u := range units {
		list, _ := dirs.Get(u.Dir)
		dirs.Set(u.Dir, append(list, u))
	}

	var shared []*SharedUtility
	var err error
	dirs.Scan(func(dir string, list []*Unit) bool {
		if len(list) < 2 {
			return true
		}
		clients := 0
		for _, u := range list {
			clients += u.Clients
		}
		if clients == 0 {
			return true
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })
		helper := list[0].Helper
		for _, u := range list[1:] {
			if u.Helper != helper {
				err = &schema.EmitError{File: u.Path, Err: fmt.Errorf("request helper differs from %s", list[0].Path)}
				return false
			}
		}

		base := opts.RootName
		if dir != "" {
			base = path.Base(dir)
		}
		name := utilityName(base)
		s := &SharedUtility{
			Name:      name,
			Namespace: list[0].Namespace,
			Path:      path.Join(dir, name+opts.Ext),
			Profile:   opts.Profile,
		}
		for _, u := range list {
			u.Shared = s
			s.Users = append(s.Users, u.Path)
		}
		shared = append(shared, s)
		return true
	})
	if err != nil {
		return nil, err
	}
	return shared, nil
}

func utilityName(dirBase string) string {
	name := ir.PascalCase(dirBase)
	if name == "" || !unicode.IsLetter([]rune(name)[0]) {
		name = "Proto" + name
	}
	return name + "HttpUtility"
}
