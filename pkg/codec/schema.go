package codec

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://mockserver.local/schema/"

var (
	schemaOnce        sync.Once
	expectationSchema *jsonschema.Schema
	matcherSchema     *jsonschema.Schema
	schemaErr         error
)

// schemas compiles the embedded schemas on first use.
func schemas() (expectation, matcher *jsonschema.Schema, err error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		for _, name := range []string{"matcher.json", "expectation.json"} {
			data, err := schemaFS.ReadFile("schema/" + name)
			if err != nil {
				schemaErr = fmt.Errorf("failed to read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(schemaBaseURL+name, bytes.NewReader(data)); err != nil {
				schemaErr = fmt.Errorf("failed to add schema resource %s: %w", name, err)
				return
			}
		}

		if matcherSchema, schemaErr = compiler.Compile(schemaBaseURL + "matcher.json"); schemaErr != nil {
			return
		}
		expectationSchema, schemaErr = compiler.Compile(schemaBaseURL + "expectation.json")
	})
	return expectationSchema, matcherSchema, schemaErr
}

// schemaMessage flattens a validation error into one line per leaf cause.
func schemaMessage(err error) string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var msgs []string
	collectSchemaErrors(verr, &msgs)
	return strings.Join(msgs, "; ")
}

func collectSchemaErrors(err *jsonschema.ValidationError, msgs *[]string) {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*msgs = append(*msgs, fmt.Sprintf("%s: %s", loc, err.Message))
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, msgs)
	}
}
