package plugins

import (
	"fmt"
	"plugin"

	"neocore/pkg/pluginapi"
)

// Library is an opened dynamic library.
type Library interface {
	Lookup(symbol string) (any, error)
}

// Opener opens a dynamic library by path.
type Opener interface {
	Open(path string) (Library, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Library, error)

func (f OpenerFunc) Open(path string) (Library, error) { return f(path) }

// GoPluginOpener opens libraries built with -buildmode=plugin. Go plugins
// are never unloaded; dropping the handle only releases the reference.
type GoPluginOpener struct{}

func (GoPluginOpener) Open(path string) (Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return goPlugin{p: p}, nil
}

type goPlugin struct {
	p *plugin.Plugin
}

func (g goPlugin) Lookup(symbol string) (any, error) {
	sym, err := g.p.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

// resolveRoot accepts the exported forms of an entry symbol: a function,
// a variable holding a function, or a variable holding the root table.
func resolveRoot(sym any) (pluginapi.RootV1, error) {
	var root pluginapi.RootV1
	switch v := sym.(type) {
	case func() pluginapi.RootV1:
		root = v()
	case *func() pluginapi.RootV1:
		if v == nil || *v == nil {
			return root, fmt.Errorf("entry variable is nil")
		}
		root = (*v)()
	case *pluginapi.RootV1:
		if v == nil {
			return root, fmt.Errorf("entry variable is nil")
		}
		root = *v
	case pluginapi.RootV1:
		root = v
	default:
		return root, fmt.Errorf("entry symbol has type %T, want func() pluginapi.RootV1", sym)
	}
	if root.Create == nil {
		return root, fmt.Errorf("entry root has no Create function")
	}
	return root, nil
}
