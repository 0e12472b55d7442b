/*
   rss-funnel - a filtering proxy for RSS, Atom and JSON feeds
   Copyright (C) 2025  rss-funnel contributors

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package jsvm hosts user scripts on a goja runtime. Every VM carries the
// same set of bindings: console, util, blake2s, a synchronous fetch and a
// small DOM facade over golang.org/x/net/html. VMs are single threaded and
// live for one request; they are never shared across goroutines.
package jsvm

import (
	"context"

	"github.com/dop251/goja"
	"github.com/pkg/errors"

	"github.com/rssfunnel/funnel/pkg/fetch"
)

// VM is a goja runtime with the host bindings installed.
type VM struct {
	rt     *goja.Runtime
	ctx    context.Context
	client *fetch.Client
}

// New builds a VM bound to ctx. Scripts running on the VM are interrupted
// when ctx is cancelled. client backs the fetch binding and may be nil, in
// which case fetch throws.
func New(ctx context.Context, client *fetch.Client) (*VM, error) {
	vm := &VM{rt: goja.New(), ctx: ctx, client: client}
	if err := vm.registerBuiltins(); err != nil {
		return nil, err
	}
	if err := vm.registerFetch(); err != nil {
		return nil, err
	}
	if err := vm.registerDOM(); err != nil {
		return nil, err
	}
	return vm, nil
}

// Runtime exposes the underlying goja runtime for value conversion.
func (vm *VM) Runtime() *goja.Runtime { return vm.rt }

// Eval runs src on the VM, typically to evaluate the definitions of a user
// script.
func (vm *VM) Eval(src string) error {
	stop := vm.watch()
	defer stop()
	_, err := vm.rt.RunString(src)
	return err
}

// Has reports whether the script defined a global function name.
func (vm *VM) Has(name string) bool {
	_, ok := goja.AssertFunction(vm.rt.Get(name))
	return ok
}

// Call invokes the global function name. Plain maps and slices among the
// args are rebuilt as native JS objects and arrays, so scripts can use
// property writes and array methods on them; mutations stay in the VM and
// must be read back from the return value.
func (vm *VM) Call(name string, args ...interface{}) (goja.Value, error) {
	fn, ok := goja.AssertFunction(vm.rt.Get(name))
	if !ok {
		return nil, errors.Errorf("%q is not a function", name)
	}
	vals := make([]goja.Value, len(args))
	for i, arg := range args {
		vals[i] = vm.toValue(arg)
	}
	stop := vm.watch()
	defer stop()
	return fn(goja.Undefined(), vals...)
}

// toValue converts an argument for Call. Goja would otherwise wrap maps and
// slices as live views of the Go values, where writes through nested
// wrappers get lost; native objects make the script side behave like a
// browser and leave the Go values untouched.
func (vm *VM) toValue(v interface{}) goja.Value {
	switch t := v.(type) {
	case map[string]interface{}:
		obj := vm.rt.NewObject()
		for k, val := range t {
			_ = obj.Set(k, vm.toValue(val))
		}
		return obj
	case []interface{}:
		vals := make([]interface{}, len(t))
		for i, val := range t {
			vals[i] = vm.toValue(val)
		}
		return vm.rt.NewArray(vals...)
	}
	return vm.rt.ToValue(v)
}

// watch interrupts the runtime when the VM context is cancelled. The
// returned stop function must be called once the script returns.
func (vm *VM) watch() func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-vm.ctx.Done():
			vm.rt.Interrupt(vm.ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		vm.rt.ClearInterrupt()
	}
}

// Interrupted reports whether err is the result of a cancelled context
// interrupting a running script.
func Interrupted(err error) bool {
	var ie *goja.InterruptedError
	return errors.As(err, &ie)
}

// throw raises a JS exception from native code.
func (vm *VM) throw(err error) {
	panic(vm.rt.NewGoError(err))
}
