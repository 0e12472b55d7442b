package jsvm

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

// registerFetch installs a synchronous fetch(url, init?) returning an object
// with status, ok, headers, text() and json(). Blocking is fine here: the VM
// runs on a single request-scoped goroutine anyway.
func (vm *VM) registerFetch() error {
	return vm.rt.Set("fetch", func(call goja.FunctionCall) goja.Value {
		if vm.client == nil {
			vm.throw(errors.New("fetch is not available in this context"))
		}
		url := call.Argument(0).String()

		method := http.MethodGet
		header := http.Header{}
		var body []byte
		if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			init, ok := arg.Export().(map[string]interface{})
			if !ok {
				vm.throw(errors.New("fetch init must be an object"))
			}
			if m, ok := init["method"].(string); ok && m != "" {
				method = m
			}
			if hs, ok := init["headers"].(map[string]interface{}); ok {
				for name, value := range hs {
					header.Set(name, fmt.Sprintf("%v", value))
				}
			}
			if b, ok := init["body"].(string); ok && b != "" {
				body = []byte(b)
			}
		}

		resp, err := vm.client.Do(vm.ctx, method, url, header, body)
		if err != nil {
			vm.throw(err)
		}

		headers := map[string]string{}
		for name := range resp.Header {
			headers[name] = resp.Header.Get(name)
		}

		obj := vm.rt.NewObject()
		must(obj.Set("status", resp.Status))
		must(obj.Set("ok", resp.Status >= 200 && resp.Status < 300))
		must(obj.Set("headers", headers))
		text := resp.Text()
		must(obj.Set("text", func() string { return text }))
		must(obj.Set("json", func(goja.FunctionCall) goja.Value {
			var parsed interface{}
			if err := json.Unmarshal([]byte(text), &parsed); err != nil {
				vm.throw(errors.Wrap(err, "response is not JSON"))
			}
			return vm.rt.ToValue(parsed)
		}))
		return obj
	})
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
