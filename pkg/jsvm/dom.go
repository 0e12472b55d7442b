package jsvm

import (
	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/rssfunnel/funnel/pkg/htmlutil"
)

// registerDOM installs the DOM constructor. A DOM wraps an HTML fragment;
// scripts query it with CSS selectors and mutate the returned nodes. html()
// serializes the fragment back without wrapping it in a document.
func (vm *VM) registerDOM() error {
	return vm.rt.Set("DOM", func(call goja.ConstructorCall) *goja.Object {
		src := ""
		if len(call.Arguments) > 0 {
			src = call.Argument(0).String()
		}
		roots, err := htmlutil.ParseFragment(src)
		if err != nil {
			vm.throw(errors.Wrap(err, "parse HTML"))
		}
		container := htmlutil.WrapFragment(roots)

		this := call.This
		must(this.Set("select", func(selector string) goja.Value {
			return vm.selectWithin(container, selector)
		}))
		must(this.Set("html", func() string {
			return htmlutil.InnerHTML(container)
		}))
		return this
	})
}

// selectWithin runs a CSS selector over the children of n and returns the
// matches as an array of node objects.
func (vm *VM) selectWithin(n *html.Node, selector string) goja.Value {
	sel, err := htmlutil.Compile(selector)
	if err != nil {
		vm.throw(errors.Wrapf(err, "invalid selector %q", selector))
	}
	matches := htmlutil.SelectAll(htmlutil.Children(n), sel)
	items := make([]interface{}, len(matches))
	for i, m := range matches {
		items[i] = vm.nodeObject(m)
	}
	return vm.rt.NewArray(items...)
}

// nodeObject wraps an element node in a JS object. The methods close over
// the node pointer, so edits land in the owning fragment.
func (vm *VM) nodeObject(n *html.Node) *goja.Object {
	obj := vm.rt.NewObject()
	must(obj.Set("tag", func() string { return n.Data }))
	must(obj.Set("text", func() string { return htmlutil.Text(n) }))
	must(obj.Set("attr", func(name string) goja.Value {
		if val, ok := htmlutil.Attr(n, name); ok {
			return vm.rt.ToValue(val)
		}
		return goja.Null()
	}))
	must(obj.Set("set_attr", func(name, value string) {
		htmlutil.SetAttr(n, name, value)
	}))
	must(obj.Set("unset_attr", func(name string) {
		htmlutil.RemoveAttr(n, name)
	}))
	must(obj.Set("inner_html", func() string {
		return htmlutil.InnerHTML(n)
	}))
	must(obj.Set("set_inner_html", func(fragment string) {
		if err := htmlutil.SetInnerHTML(n, fragment); err != nil {
			vm.throw(err)
		}
	}))
	must(obj.Set("outer_html", func() string {
		return htmlutil.Render(n)
	}))
	must(obj.Set("set_outer_html", func(fragment string) {
		if n.Parent == nil {
			vm.throw(errors.New("node has no parent"))
		}
		nodes, err := htmlutil.ParseFragment(fragment)
		if err != nil {
			vm.throw(err)
		}
		for _, repl := range nodes {
			n.Parent.InsertBefore(repl, n)
		}
		n.Parent.RemoveChild(n)
	}))
	must(obj.Set("children", func() goja.Value {
		var items []interface{}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				items = append(items, vm.nodeObject(c))
			}
		}
		return vm.rt.NewArray(items...)
	}))
	must(obj.Set("select", func(selector string) goja.Value {
		return vm.selectWithin(n, selector)
	}))
	return obj
}
