package transport

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

var (
	resumeUploadSchema      = mustSchema("schemas/resume_upload.json")
	coverLetterUploadSchema = mustSchema("schemas/cover_letter_upload.json")
)

func mustSchema(name string) *gojsonschema.Schema {
	raw, err := schemaFiles.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("read schema %s: %v", name, err))
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

// validateBody checks an upstream JSON body against schema.
func validateBody(op string, schema *gojsonschema.Schema, body []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &Error{Kind: KindInvalidResponse, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return &Error{Kind: KindInvalidResponse, Op: op, Err: fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))}
}
