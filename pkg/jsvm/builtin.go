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

package jsvm

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"html"
	"log"
	"net/url"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/crypto/blake2s"
)

// registerBuiltins installs console, util and blake2s.
func (vm *VM) registerBuiltins() error {
	console := vm.rt.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		level := level
		err := console.Set(level, func(call goja.FunctionCall) goja.Value {
			vm.consoleWrite(level, call.Arguments)
			return goja.Undefined()
		})
		if err != nil {
			return err
		}
	}
	if err := vm.rt.Set("console", console); err != nil {
		return err
	}

	util := vm.rt.NewObject()
	for name, fn := range map[string]func(string) string{
		"decode_html": html.UnescapeString,
		"encode_html": html.EscapeString,
		"encode_url":  url.QueryEscape,
		"encode_base64": func(s string) string {
			return base64.StdEncoding.EncodeToString([]byte(s))
		},
	} {
		if err := util.Set(name, fn); err != nil {
			return err
		}
	}
	err := util.Set("decode_base64", func(s string) string {
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			vm.throw(err)
		}
		return string(data)
	})
	if err != nil {
		return err
	}
	err = util.Set("decode_url", func(s string) string {
		decoded, err := url.QueryUnescape(s)
		if err != nil {
			vm.throw(err)
		}
		return decoded
	})
	if err != nil {
		return err
	}
	if err := vm.rt.Set("util", util); err != nil {
		return err
	}

	return vm.rt.Set("blake2s", func(s string) string {
		sum := blake2s.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	})
}

func (vm *VM) consoleWrite(level string, args []goja.Value) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, fmt.Sprintf("%v", arg.Export()))
	}
	log.Printf("[js] %s: %s", level, strings.Join(parts, " "))
}
