package planclient

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed schema.yaml
var schemaYAML []byte

var (
	schemaOnce sync.Once
	planSchema *openapi3.Schema
	schemaErr  error
)

func accountPlanSchema() (*openapi3.Schema, error) {
	schemaOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(schemaYAML)
		if err != nil {
			schemaErr = fmt.Errorf("load plan schema: %w", err)
			return
		}
		ref, ok := doc.Components.Schemas["AccountPlan"]
		if !ok || ref.Value == nil {
			schemaErr = fmt.Errorf("plan schema: AccountPlan missing")
			return
		}
		planSchema = ref.Value
	})
	return planSchema, schemaErr
}

// validateShape checks raw JSON against the AccountPlan schema before it is
// decoded into Go types.
func validateShape(body []byte) error {
	schema, err := accountPlanSchema()
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.VisitJSON(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
